package browser

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/invoice-e2e/internal/errs"
	"github.com/kuitang/invoice-e2e/internal/obs"
	"github.com/kuitang/invoice-e2e/internal/workflow"
)

func runInvoiceScenario(t *testing.T, r *Replica, invoicePath, vendor string, mutate func(*workflow.Params)) (*workflow.Report, error) {
	t.Helper()
	env := SetupBrowserTestEnv(t)
	sess := env.NewSession(t)
	cfg := r.Config(invoicePath, vendor)
	set := workflow.NewPageSet(sess.Page, cfg, sess.RunID)

	params := workflow.ParamsFromConfig(cfg)
	if mutate != nil {
		mutate(&params)
	}
	ctx := obs.WithCorrelation(context.Background(), obs.Correlation{RunID: sess.RunID})
	return workflow.NewRunner(set.Base).Run(ctx, workflow.InvoiceScenario(set, params))
}

func TestWorkflow_InvoiceScenarioPasses(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	vendor := UniqueVendor(t)
	path := WriteInvoice(t, vendor, "WF-2001")

	report, err := runInvoiceScenario(t, env.App, path, vendor, nil)
	require.NoError(t, err)
	require.Equal(t, "pass", report.Outcome)
	require.Equal(t, workflow.StateInvoiceDetail, report.Final)
	require.Len(t, report.Steps, 6)
	require.Contains(t, report.Steps[5].URL, "/invoice/WF-2001")
}

func TestWorkflow_InvoiceScenarioPassesThroughInterstitial(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	vendor := UniqueVendor(t)
	path := WriteInvoice(t, vendor, "WF-2002")

	report, err := runInvoiceScenario(t, env.Interstitial, path, vendor, nil)
	require.NoError(t, err)
	require.Equal(t, workflow.StateInvoiceDetail, report.Final)
}

func TestWorkflow_BadCredentialsFailAtLogin(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	vendor := UniqueVendor(t)
	path := WriteInvoice(t, vendor, "WF-2003")

	report, err := runInvoiceScenario(t, env.App, path, vendor, func(p *workflow.Params) {
		p.Password = "not-the-password"
	})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Timeout), "got %v", err)
	require.Equal(t, "fail", report.Outcome)
	require.Equal(t, workflow.StateRoot, report.Final)

	var stepErr *workflow.StepError
	require.True(t, errors.As(err, &stepErr))
	require.Equal(t, "login", stepErr.Step)
	require.Len(t, report.Steps, 1)
}

func TestWorkflow_MissingFixtureSkips(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	missing := filepath.Join(t.TempDir(), "missing.pdf")

	report, err := runInvoiceScenario(t, env.App, missing, UniqueVendor(t), nil)
	require.True(t, errs.Is(err, errs.Skipped), "got %v", err)
	require.Equal(t, "skip", report.Outcome)
	require.Empty(t, report.Steps)
}
