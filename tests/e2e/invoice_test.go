package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/invoice-e2e/internal/config"
	"github.com/kuitang/invoice-e2e/internal/errs"
	"github.com/kuitang/invoice-e2e/internal/obs"
	"github.com/kuitang/invoice-e2e/internal/session"
	"github.com/kuitang/invoice-e2e/internal/workflow"
)

// liveConfig loads configuration from the environment, skipping when no
// deployment is named or the invoice fixture is absent.
func liveConfig(t *testing.T) *config.Config {
	t.Helper()
	if os.Getenv("APP_URL") == "" && os.Getenv("BASE_URL") == "" {
		t.Skip("APP_URL not set; skipping live invoice scenario")
	}
	cfg, err := config.LoadConfig(config.Flags{})
	require.NoError(t, err)
	cfg.InvoicePath = fixturePath(cfg.InvoicePath)

	if err := workflow.RequireFixture(cfg.InvoicePath)(); err != nil {
		t.Skip(errs.MessageOf(err))
	}
	return cfg
}

func TestInvoiceScenario_Live(t *testing.T) {
	cfg := liveConfig(t)

	launcher, err := session.Launch(session.OptionsFromConfig(cfg))
	if err != nil {
		t.Skipf("browser unavailable: %v", err)
	}
	t.Cleanup(func() { launcher.Close() })

	runID := obs.NewRunID()
	sess, err := launcher.NewSession(runID)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	set := workflow.NewPageSet(sess.Page, cfg, runID)
	ctx := obs.WithCorrelation(context.Background(), obs.Correlation{RunID: runID})
	report, err := workflow.NewRunner(set.Base).Run(ctx, workflow.InvoiceScenario(set, workflow.ParamsFromConfig(cfg)))

	for i, step := range report.Steps {
		t.Logf("%d. %s %s -> %s (%dms) %s", i+1, step.Name, step.From, step.To, step.Duration.Milliseconds(), step.URL)
	}
	if errs.Is(err, errs.Skipped) {
		t.Skip(errs.MessageOf(err))
	}
	require.NoError(t, err)
	require.Equal(t, workflow.StateInvoiceDetail, report.Final)
	require.True(t, set.Detail.IsOnInvoiceDetailPage())
	require.NotEmpty(t, set.Detail.InvoiceID())
}

func TestFixturePath(t *testing.T) {
	root := repositoryRoot()
	require.Equal(t, filepath.Join(root, config.DefaultInvoicePath), fixturePath(""))
	require.Equal(t, filepath.Join(root, "a.pdf"), fixturePath("a.pdf"))
	require.Equal(t, "/tmp/a.pdf", fixturePath("/tmp/a.pdf"))

	_, err := os.Stat(fixturePath(""))
	require.NoError(t, err, "sample invoice should ship with the repository")
}
