// Package workflow composes page objects into scenarios. A scenario is an
// ordered list of steps over a small screen state machine; every step's
// arrival is confirmed by a URL-pattern wait before the next one starts.
package workflow

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kuitang/invoice-e2e/internal/errs"
	"github.com/kuitang/invoice-e2e/internal/obs"
)

// State is the screen the tab is confirmed to be on.
type State string

const (
	StateRoot          State = "root"
	StateDashboard     State = "dashboard"
	StateUpload        State = "upload"
	StateInvoices      State = "invoices"
	StateInvoiceDetail State = "invoice_detail"
)

// Step is one confirmed transition.
type Step struct {
	Name   string
	From   State
	To     State
	Action func() error
	// Confirm is the URL pattern that proves arrival at To.
	Confirm string
	// ConfirmTimeout bounds the confirmation wait; zero selects the short default.
	ConfirmTimeout time.Duration
}

// Scenario is a named sequence of steps with an optional precondition.
type Scenario struct {
	Name string
	// Precondition runs before any step. An errs.Skipped error skips the
	// scenario; any other error fails it.
	Precondition func() error
	Steps        []Step
	// Terminal is the state a passing run must end in.
	Terminal State
}

// URLWaiter confirms arrival. *pages.Base satisfies it.
type URLWaiter interface {
	WaitForURL(pattern string, timeout time.Duration) error
	CurrentURL() string
}

// StepError attributes a scenario failure to one step.
type StepError struct {
	Index int
	Step  string
	From  State
	To    State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d %q (%s -> %s): %v", e.Index+1, e.Step, e.From, e.To, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepResult records one executed step.
type StepResult struct {
	Name     string
	From     State
	To       State
	URL      string
	Duration time.Duration
	Err      error
}

// Report summarizes a scenario run.
type Report struct {
	Scenario string
	RunID    string
	Outcome  string // "pass", "fail" or "skip"
	Final    State
	Steps    []StepResult
	Duration time.Duration
	Err      error
}

// Runner executes scenarios against one tab. It is single-use per
// scenario run and not safe for concurrent use.
type Runner struct {
	waiter URLWaiter
	state  State
}

func NewRunner(waiter URLWaiter) *Runner {
	return &Runner{waiter: waiter, state: StateRoot}
}

// State returns the last confirmed state.
func (r *Runner) State() State {
	return r.state
}

// Run executes sc from StateRoot. The returned error is nil only for a
// passing run; the report is always populated.
func (r *Runner) Run(ctx context.Context, sc Scenario) (*Report, error) {
	r.state = StateRoot
	corr := obs.CorrelationFromContext(ctx)
	if corr.RunID == "" {
		corr.RunID = obs.NewRunID()
	}
	corr.Scenario = sc.Name
	ctx = obs.WithCorrelation(ctx, corr)

	report := &Report{Scenario: sc.Name, RunID: corr.RunID, Final: r.state}
	start := time.Now()
	finish := func(err error) (*Report, error) {
		report.Duration = time.Since(start)
		report.Final = r.state
		report.Err = err
		report.Outcome = "pass"
		if err != nil {
			report.Outcome = errs.Outcome(errs.CodeOf(err))
		}
		obs.From(ctx).Info("scenario finished",
			"outcome", report.Outcome,
			"final_state", report.Final,
			"dur_ms", report.Duration.Milliseconds(),
		)
		return report, err
	}

	if sc.Precondition != nil {
		if err := sc.Precondition(); err != nil {
			obs.From(ctx).Info("scenario precondition not met", "code", errs.CodeOf(err), "reason", err.Error())
			return finish(err)
		}
	}

	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return finish(r.stepError(i, step, errs.Wrap(errs.Timeout, "scenario cancelled", err)))
		}
		res, err := r.runStep(obs.WithStep(ctx, step.Name), step)
		report.Steps = append(report.Steps, res)
		if err != nil {
			return finish(r.stepError(i, step, err))
		}
	}

	if sc.Terminal != "" && r.state != sc.Terminal {
		return finish(errs.New(errs.Internal, fmt.Sprintf("scenario ended in %s, want %s", r.state, sc.Terminal)))
	}
	return finish(nil)
}

func (r *Runner) runStep(ctx context.Context, step Step) (res StepResult, err error) {
	log := obs.From(ctx)
	res = StepResult{Name: step.Name, From: step.From, To: step.To}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		res.Err = err
		if res.URL == "" {
			res.URL = r.waiter.CurrentURL()
		}
	}()

	if step.From != r.state {
		return res, errs.New(errs.InvalidArgument, fmt.Sprintf("step requires state %s, runner is in %s", step.From, r.state))
	}
	if step.Confirm == "" {
		return res, errs.New(errs.InvalidArgument, "step has no confirmation pattern")
	}

	log.Info("step started", "from", step.From, "to", step.To)
	if step.Action != nil {
		if err := step.Action(); err != nil {
			log.Warn("step action failed", "code", errs.CodeOf(err), "url", r.waiter.CurrentURL(), "error", err)
			return res, err
		}
	}
	if err := r.waiter.WaitForURL(step.Confirm, step.ConfirmTimeout); err != nil {
		log.Warn("step not confirmed", "pattern", step.Confirm, "url", r.waiter.CurrentURL(), "error", err)
		return res, err
	}

	r.state = step.To
	res.URL = r.waiter.CurrentURL()
	log.Info("step confirmed", "state", r.state, "url", res.URL, "dur_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (r *Runner) stepError(i int, step Step, err error) error {
	// Keep the cause's code so callers can classify the failure.
	return errs.Wrap(errs.CodeOf(err), fmt.Sprintf("scenario aborted at step %q", step.Name), &StepError{
		Index: i,
		Step:  step.Name,
		From:  step.From,
		To:    step.To,
		Err:   err,
	})
}

// RequireFixture returns an errs.Skipped error when path does not exist.
func RequireFixture(path string) func() error {
	return func() error {
		info, err := os.Stat(path)
		if err != nil {
			return errs.Wrap(errs.Skipped, fmt.Sprintf("test invoice file not found at: %s", path), err)
		}
		if info.IsDir() {
			return errs.New(errs.Skipped, fmt.Sprintf("test invoice path is a directory: %s", path))
		}
		return nil
	}
}
