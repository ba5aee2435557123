package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/invoice-e2e/internal/config"
	"github.com/kuitang/invoice-e2e/internal/errs"
	"github.com/kuitang/invoice-e2e/internal/obs"
	"github.com/kuitang/invoice-e2e/internal/pages"
	"github.com/kuitang/invoice-e2e/internal/pages/pagestest"
)

const testBaseURL = "http://app.test:3000"

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice_Anthony_Jacobs_37594.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n%%EOF\n"), 0o600))
	return path
}

func testConfig(invoicePath string) *config.Config {
	cfg := config.Default()
	cfg.BaseURL = testBaseURL
	cfg.InvoicePath = invoicePath
	return cfg
}

func indexOf(events []string, event string) int {
	for i, e := range events {
		if e == event {
			return i
		}
	}
	return -1
}

func TestInvoiceScenario_Passes(t *testing.T) {
	cfg := testConfig(writeFixture(t))
	tab := pagestest.NewInvoiceApp(testBaseURL)
	set := NewPageSet(tab, cfg, "run-test")

	runner := NewRunner(set.Base)
	report, err := runner.Run(context.Background(), InvoiceScenario(set, ParamsFromConfig(cfg)))
	require.NoError(t, err)
	require.Equal(t, "pass", report.Outcome)
	require.Equal(t, StateInvoiceDetail, report.Final)
	require.Equal(t, StateInvoiceDetail, runner.State())
	require.Len(t, report.Steps, 6)
	require.Equal(t, testBaseURL+"/invoice/INV-37594", report.Steps[5].URL)
	require.Equal(t, "INV-37594", set.Detail.InvoiceID())

	events := tab.Events()
	order := []string{
		"goto:" + testBaseURL + "/",
		"click:role:button:Sign In",
		"goto:" + testBaseURL + "/upload",
		`files:css:input[type="file"]`,
		"goto:" + testBaseURL + "/invoices",
		"fill:css:#vendor",
		"click:role:button:Search",
		"waitfor:role:link:View",
		"click:role:link:View",
	}
	last := -1
	for _, ev := range order {
		i := indexOf(events, ev)
		require.Greater(t, i, last, "event %q out of order in %v", ev, events)
		last = i
	}
	require.Equal(t, []float64{15000}, tab.Waits(), "upload completion falls back to the fixed wait")
}

func TestInvoiceScenario_SkipsWithoutFixture(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing.pdf"))
	tab := pagestest.NewInvoiceApp(testBaseURL)
	set := NewPageSet(tab, cfg, "")

	report, err := NewRunner(set.Base).Run(context.Background(), InvoiceScenario(set, ParamsFromConfig(cfg)))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Skipped), "got %v", err)
	require.Equal(t, "skip", report.Outcome)
	require.Contains(t, err.Error(), "test invoice file not found at:")
	require.Empty(t, report.Steps)
	require.Empty(t, tab.Events(), "a skipped scenario must not touch the browser")
}

func TestInvoiceScenario_FailureNamesStep(t *testing.T) {
	cfg := testConfig(writeFixture(t))
	cfg.Password = "wrong"
	tab := pagestest.NewInvoiceApp(testBaseURL)
	set := NewPageSet(tab, cfg, "")

	report, err := NewRunner(set.Base).Run(context.Background(), InvoiceScenario(set, ParamsFromConfig(cfg)))
	require.Error(t, err)
	require.Equal(t, "fail", report.Outcome)
	require.True(t, errs.Is(err, errs.Timeout), "got %v", err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, "login", stepErr.Step)
	require.Equal(t, 0, stepErr.Index)
	require.Equal(t, StateRoot, stepErr.From)
	require.Equal(t, StateDashboard, stepErr.To)
	require.Equal(t, StateRoot, report.Final)
	require.Len(t, report.Steps, 1)
	require.Equal(t, -1, indexOf(tab.Events(), "goto:"+testBaseURL+"/upload"), "no step may run after a failure")
}

func TestInvoiceScenario_NoSearchResults(t *testing.T) {
	cfg := testConfig(writeFixture(t))
	tab := pagestest.NewInvoiceApp(testBaseURL)
	set := NewPageSet(tab, cfg, "")
	params := ParamsFromConfig(cfg)
	params.Vendor = ""

	_, err := NewRunner(set.Base).Run(context.Background(), InvoiceScenario(set, params))
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	require.Equal(t, "view first result", stepErr.Step)
	require.True(t, errs.Is(err, errs.Timeout))
	require.Equal(t, -1, indexOf(tab.Events(), "click:role:link:View"))
}

func TestInvoiceScenario_UploadWaitsForVendorCount(t *testing.T) {
	var calls atomic.Int32
	var runID atomic.Value
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		runID.Store(r.Header.Get(obs.RunIDHeader))
		if calls.Add(1) < 2 {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"VendorName": "SuperStore", "TotalInvoices": 1})
	}))
	defer api.Close()

	cfg := testConfig(writeFixture(t))
	cfg.APIBaseURL = api.URL
	tab := pagestest.NewInvoiceApp(testBaseURL)
	set := NewPageSet(tab, cfg, "run-watch")
	set.Upload.WithProbeInterval(time.Millisecond, 10*time.Millisecond)

	_, err := NewRunner(set.Base).Run(context.Background(), InvoiceScenario(set, ParamsFromConfig(cfg)))
	require.NoError(t, err)
	require.GreaterOrEqual(t, calls.Load(), int32(2))
	require.Equal(t, "run-watch", runID.Load())
	require.Empty(t, tab.Waits(), "polling the API replaces the fixed wait")
}

func TestRunner_RejectsStepFromWrongState(t *testing.T) {
	tab := pagestest.NewFakeTab(testBaseURL + "/invoices")
	base := pages.NewBase(tab, pages.Options{BaseURL: testBaseURL})

	ran := false
	_, err := NewRunner(base).Run(context.Background(), Scenario{
		Name: "out_of_order",
		Steps: []Step{{
			Name: "search", From: StateInvoices, To: StateInvoices,
			Confirm: pages.InvoicesPattern,
			Action:  func() error { ran = true; return nil },
		}},
	})
	require.True(t, errs.Is(err, errs.InvalidArgument), "got %v", err)
	require.False(t, ran)
}

func TestRunner_RequiresConfirmation(t *testing.T) {
	base := pages.NewBase(pagestest.NewFakeTab(testBaseURL), pages.Options{BaseURL: testBaseURL})
	_, err := NewRunner(base).Run(context.Background(), Scenario{
		Name:  "unconfirmed",
		Steps: []Step{{Name: "noop", From: StateRoot, To: StateDashboard}},
	})
	require.True(t, errs.Is(err, errs.InvalidArgument), "got %v", err)
}

func TestRunner_CancelledContext(t *testing.T) {
	base := pages.NewBase(pagestest.NewFakeTab(testBaseURL), pages.Options{BaseURL: testBaseURL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewRunner(base).Run(ctx, Scenario{
		Name:  "cancelled",
		Steps: []Step{{Name: "first", From: StateRoot, To: StateDashboard, Confirm: ".*"}},
	})
	require.True(t, errs.Is(err, errs.Timeout), "got %v", err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, "fail", report.Outcome)
}

func TestRunner_UsesRunIDFromContext(t *testing.T) {
	base := pages.NewBase(pagestest.NewFakeTab(testBaseURL), pages.Options{BaseURL: testBaseURL})
	ctx := obs.WithCorrelation(context.Background(), obs.Correlation{RunID: "run-fixed"})

	report, err := NewRunner(base).Run(ctx, Scenario{Name: "empty"})
	require.NoError(t, err)
	require.Equal(t, "run-fixed", report.RunID)

	report, err = NewRunner(base).Run(context.Background(), Scenario{Name: "empty"})
	require.NoError(t, err)
	require.Regexp(t, `^run-[0-9a-f-]{36}$`, report.RunID)
}

// scriptedWaiter confirms a pattern iff the scripted URL matches it.
type scriptedWaiter struct {
	url string
}

func (w *scriptedWaiter) WaitForURL(pattern string, _ time.Duration) error {
	if regexp.MustCompile(pattern).MatchString(w.url) {
		return nil
	}
	return errs.New(errs.Timeout, "url not reached")
}

func (w *scriptedWaiter) CurrentURL() string {
	return w.url
}

func TestRunner_NeverAdvancesPastUnconfirmedStep(t *testing.T) {
	states := []State{StateDashboard, StateUpload, StateInvoices, StateInvoiceDetail}
	paths := map[State]string{
		StateDashboard:     "/dashboard",
		StateUpload:        "/upload",
		StateInvoices:      "/invoices",
		StateInvoiceDetail: "/invoice/1",
	}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "steps")
		waiter := &scriptedWaiter{url: testBaseURL + "/"}

		var steps []Step
		failAt := -1
		from := StateRoot
		for i := 0; i < n; i++ {
			to := rapid.SampledFrom(states).Draw(t, "to")
			lands := rapid.Bool().Draw(t, "lands")
			if !lands && failAt < 0 {
				failAt = i
			}
			target := testBaseURL + paths[to]
			if !lands {
				target = testBaseURL + "/login"
			}
			steps = append(steps, Step{
				Name:    string(to),
				From:    from,
				To:      to,
				Confirm: `.*` + regexp.QuoteMeta(paths[to]) + `$`,
				Action:  func() error { waiter.url = target; return nil },
			})
			from = to
		}

		runner := NewRunner(waiter)
		report, err := runner.Run(context.Background(), Scenario{Name: "prop", Steps: steps})
		if failAt < 0 {
			if err != nil || runner.State() != steps[n-1].To {
				t.Fatalf("all steps land but run failed: %v", err)
			}
			return
		}

		var stepErr *StepError
		if !errors.As(err, &stepErr) || stepErr.Index != failAt {
			t.Fatalf("want failure at step %d, got %v", failAt, err)
		}
		if len(report.Steps) != failAt+1 {
			t.Fatalf("ran %d steps, want %d", len(report.Steps), failAt+1)
		}
		want := StateRoot
		if failAt > 0 {
			want = steps[failAt-1].To
		}
		if runner.State() != want {
			t.Fatalf("state %s after failure at %d, want %s", runner.State(), failAt, want)
		}
	})
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.Default()
	p := ParamsFromConfig(cfg)
	require.Equal(t, config.DefaultInvoicePath, p.InvoicePath)
	require.Equal(t, "admin", p.Username)
	require.Equal(t, "admin", p.Password)
	require.Equal(t, "SuperStore", p.Vendor)
	require.Equal(t, 15*time.Second, p.UploadTimeout)
	require.Equal(t, 5*time.Second, p.DetailTimeout)
}
