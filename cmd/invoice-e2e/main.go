// Command invoice-e2e runs the invoice upload scenario once against a deployed
// Invoice Parser: sign in, upload the sample invoice, search its vendor and
// open the first result.
//
// Usage:
//
//	APP_URL=http://localhost:3000 go run ./cmd/invoice-e2e [-headed] [-invoice path] [-html-report out.html]
//
// Exit status is 0 when the scenario passes or is skipped, 1 when a step
// fails and 2 when the configuration is invalid.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kuitang/invoice-e2e/internal/config"
	"github.com/kuitang/invoice-e2e/internal/errs"
	"github.com/kuitang/invoice-e2e/internal/obs"
	"github.com/kuitang/invoice-e2e/internal/session"
	"github.com/kuitang/invoice-e2e/internal/workflow"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	obs.Init()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	flags, err := config.ParseFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "invoice-e2e: %v\n", err)
		return exitConfig
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(stderr, "invoice-e2e: %v\n", err)
		return exitConfig
	}
	if flags.Summary {
		cfg.PrintStartupSummary(stderr)
	}

	runID := obs.NewRunID()
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: runID, Scenario: workflow.InvoiceScenarioName})
	log := obs.From(ctx)

	// A missing fixture skips the run before any browser is started.
	if err := workflow.RequireFixture(cfg.InvoicePath)(); err != nil {
		fmt.Fprintf(stderr, "SKIP %s: %s\n", workflow.InvoiceScenarioName, errs.MessageOf(err))
		return exitOK
	}

	launcher, err := session.Launch(session.OptionsFromConfig(cfg))
	if err != nil {
		log.Error("browser launch failed", "error", err)
		fmt.Fprintf(stderr, "FAIL %s: %v\n", workflow.InvoiceScenarioName, err)
		return exitFailed
	}
	defer launcher.Close()

	sess, err := launcher.NewSession(runID)
	if err != nil {
		log.Error("browser session failed", "error", err)
		fmt.Fprintf(stderr, "FAIL %s: %v\n", workflow.InvoiceScenarioName, err)
		return exitFailed
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("session close failed", "error", err)
		}
	}()

	set := workflow.NewPageSet(sess.Page, cfg, runID)
	report, err := workflow.NewRunner(set.Base).Run(ctx, workflow.InvoiceScenario(set, workflow.ParamsFromConfig(cfg)))
	writeReport(stderr, report)
	if flags.HTMLReport != "" {
		if werr := writeHTMLReport(flags.HTMLReport, report); werr != nil {
			log.Error("html report not written", "path", flags.HTMLReport, "error", werr)
		}
	}
	return exitCode(report, err)
}

func exitCode(report *workflow.Report, err error) int {
	if err == nil {
		return exitOK
	}
	if report != nil && report.Outcome == "skip" {
		return exitOK
	}
	return exitFailed
}

func writeHTMLReport(path string, report *workflow.Report) error {
	if report == nil {
		return nil
	}
	page, err := report.HTML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	return os.WriteFile(path, page, 0o644)
}

func writeReport(w io.Writer, report *workflow.Report) {
	if report == nil {
		return
	}
	for i, step := range report.Steps {
		status := "ok"
		if step.Err != nil {
			status = "FAILED"
		}
		fmt.Fprintf(w, "  %d. %-18s %-6s %6dms  %s\n", i+1, step.Name, status, step.Duration.Milliseconds(), step.URL)
	}
	verdict := map[string]string{"pass": "PASS", "skip": "SKIP", "fail": "FAIL"}[report.Outcome]
	fmt.Fprintf(w, "%s %s (run %s, %dms, final state %s)\n",
		verdict, report.Scenario, report.RunID, report.Duration.Milliseconds(), report.Final)
	if report.Err != nil {
		fmt.Fprintf(w, "  error: %v\n", report.Err)
	}
}
