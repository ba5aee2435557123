package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"

	"github.com/kuitang/invoice-e2e/internal/errs"
)

var uploadFileInput = BySelector(`input[type="file"]`)

const (
	defaultProbeInterval    = 250 * time.Millisecond
	defaultMaxProbeInterval = 4 * time.Second
)

// CompletionProbe reports whether the backend has finished processing the
// last upload. Errors are treated as "not yet" and the probe is retried.
type CompletionProbe func(ctx context.Context) (bool, error)

// CompletionWatch snapshots backend state right before an upload and
// returns the probe that recognizes that upload's result.
type CompletionWatch func(ctx context.Context) (CompletionProbe, error)

// UploadPage drives the invoice upload screen.
type UploadPage struct {
	*Base
	log *slog.Logger

	probe       CompletionProbe
	watch       CompletionWatch
	armed       CompletionProbe
	interval    time.Duration
	maxInterval time.Duration
}

func NewUploadPage(base *Base) *UploadPage {
	return &UploadPage{
		Base:        base,
		log:         base.log.With("page", "upload"),
		interval:    defaultProbeInterval,
		maxInterval: defaultMaxProbeInterval,
	}
}

// WithCompletionProbe makes WaitForUploadCompletion poll probe with
// exponential backoff instead of sleeping for the whole timeout.
func (p *UploadPage) WithCompletionProbe(probe CompletionProbe) *UploadPage {
	p.probe = probe
	return p
}

// WithCompletionWatch arms watch before every UploadFile. The probe it
// returns takes precedence over one set with WithCompletionProbe until the
// next completion wait ends.
func (p *UploadPage) WithCompletionWatch(watch CompletionWatch) *UploadPage {
	p.watch = watch
	return p
}

// WithProbeInterval sets the first and the largest delay between probes.
// Non-positive values keep the current setting; the ceiling is never below
// the first delay.
func (p *UploadPage) WithProbeInterval(initial, ceiling time.Duration) *UploadPage {
	if initial > 0 {
		p.interval = initial
	}
	if ceiling > 0 {
		p.maxInterval = ceiling
	}
	p.maxInterval = max(p.maxInterval, p.interval)
	return p
}

func (p *UploadPage) Goto() error {
	return p.gotoAndConfirm("/upload", UploadPattern)
}

// UploadFile binds path to the page's file input. The input may be hidden;
// no file picker is opened.
func (p *UploadPage) UploadFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, fmt.Sprintf("upload fixture %s", path), err)
	}
	if info.IsDir() {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("upload fixture %s is a directory", path))
	}

	if p.watch != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeouts.Short)
		probe, err := p.watch(ctx)
		cancel()
		if err != nil {
			return errs.Wrap(errs.Internal, "snapshot backend before upload", err)
		}
		p.armed = probe
	}

	err = p.Resolve(uploadFileInput).SetInputFiles(path, playwright.LocatorSetInputFilesOptions{
		Timeout: millis(p.timeouts.Short),
	})
	if err != nil {
		return waitError(fmt.Sprintf("set input files %s", path), err)
	}
	p.log.Info("file attached", "path", path, "bytes", info.Size())
	return nil
}

// WaitForUploadCompletion waits for backend processing of the last upload.
// A non-positive timeout selects the upload default. Without a probe the
// wait is a fixed delay of the full timeout and always succeeds.
func (p *UploadPage) WaitForUploadCompletion(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.timeouts.Upload
	}
	probe := p.probe
	if p.armed != nil {
		probe = p.armed
		p.armed = nil
	}
	if probe == nil {
		p.log.Info("upload completion: fixed wait", "timeout_ms", timeout.Milliseconds())
		p.WaitForTimeout(timeout)
		return nil
	}

	start := time.Now()
	attempts, err := pollWithBackoff(context.Background(), probe, p.interval, p.maxInterval, start.Add(timeout))
	if err != nil {
		return errs.Wrap(errs.Timeout, fmt.Sprintf("upload not processed within %s after %d probes", timeout, attempts), err)
	}
	p.log.Info("upload completion: probe satisfied",
		"attempts", attempts,
		"dur_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// errDeadline ends polling once the probe made at the deadline is not done.
var errDeadline = errors.New("deadline reached")

// pollWithBackoff calls probe until it reports done, ctx ends or deadline
// passes. The delay between calls starts at initial and doubles up to
// ceiling; a delay that would cross the deadline is cut short so the last
// call lands on it. Each call is bounded by ceiling. It returns the number
// of probe calls made.
func pollWithBackoff(ctx context.Context, probe CompletionProbe, initial, ceiling time.Duration, deadline time.Time) (int, error) {
	interval := initial
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	var lastErr error
	attempts := 0
	for {
		delay := limiter.Reserve().Delay()
		last := false
		if left := time.Until(deadline); delay >= left {
			delay, last = max(left, 0), true
		}
		if err := sleepContext(ctx, delay); err != nil {
			return attempts, err
		}

		attempts++
		done, err := callProbe(ctx, probe, ceiling)
		if err == nil && done {
			return attempts, nil
		}
		lastErr = err

		if last {
			if lastErr != nil {
				return attempts, fmt.Errorf("%w (last probe error: %v)", errDeadline, lastErr)
			}
			return attempts, errDeadline
		}

		interval = min(interval*2, ceiling)
		limiter.SetLimit(rate.Every(interval))
	}
}

func callProbe(ctx context.Context, probe CompletionProbe, bound time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()
	return probe(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
