// Package session owns the browser lifecycle for scenario runs: one
// Playwright driver and Chromium instance per Launcher, and one isolated
// browser context and tab per Session.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/invoice-e2e/internal/config"
	"github.com/kuitang/invoice-e2e/internal/errs"
	"github.com/kuitang/invoice-e2e/internal/obs"
)

// Options controls how the browser is launched and how sessions are shaped.
type Options struct {
	Headless       bool
	SlowMo         time.Duration
	ViewportWidth  int
	ViewportHeight int
	// DefaultTimeout bounds Playwright actions that carry no explicit timeout.
	DefaultTimeout time.Duration
}

// OptionsFromConfig derives launch options from harness configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Headless:       cfg.Headless,
		SlowMo:         cfg.SlowMo,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		DefaultTimeout: cfg.ShortTimeout,
	}
}

// Launcher starts Playwright and Chromium once and hands out sessions.
type Launcher struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// Launch starts the Playwright driver and a Chromium instance. Callers that
// treat a missing browser as an environment problem (tests) should skip on
// error rather than fail.
func Launch(opts Options) (*Launcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "start playwright", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMo > 0 {
		launch.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}
	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Internal, "launch chromium", err)
	}

	l := &Launcher{opts: opts, log: obs.Pkg("session"), pw: pw, browser: browser}
	l.log.Info("browser launched",
		"headless", opts.Headless,
		"slow_mo_ms", opts.SlowMo.Milliseconds(),
		"version", browser.Version(),
	)
	return l, nil
}

// NewSession opens a fresh browser context and tab. Every request the tab
// makes carries runID in the run-ID header so server logs can be joined
// with the scenario's.
func (l *Launcher) NewSession(runID string) (*Session, error) {
	l.mu.Lock()
	browser := l.browser
	l.mu.Unlock()
	if browser == nil {
		return nil, errs.New(errs.Internal, "launcher is closed")
	}

	ctx, err := browser.NewContext(contextOptions(l.opts, runID))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "create browser context", err)
	}
	if l.opts.DefaultTimeout > 0 {
		ms := float64(l.opts.DefaultTimeout.Milliseconds())
		ctx.SetDefaultTimeout(ms)
		ctx.SetDefaultNavigationTimeout(ms)
	}

	page, err := ctx.NewPage()
	if err != nil {
		_ = ctx.Close()
		return nil, errs.Wrap(errs.Internal, "open tab", err)
	}
	l.log.Debug("session opened", "run_id", runID)
	return newSession(ctx, page, runID), nil
}

func contextOptions(opts Options, runID string) playwright.BrowserNewContextOptions {
	out := playwright.BrowserNewContextOptions{}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		out.Viewport = &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight}
	}
	if runID != "" {
		out.ExtraHttpHeaders = map[string]string{obs.RunIDHeader: runID}
	}
	return out
}

// Close shuts down the browser and the driver. It is safe to call twice.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errList []error
	if l.browser != nil {
		if err := l.browser.Close(); err != nil {
			errList = append(errList, fmt.Errorf("close browser: %w", err))
		}
		l.browser = nil
	}
	if l.pw != nil {
		if err := l.pw.Stop(); err != nil {
			errList = append(errList, fmt.Errorf("stop playwright: %w", err))
		}
		l.pw = nil
	}
	return errors.Join(errList...)
}

// Session is one isolated browser context with a single tab. Page objects
// borrow the tab; the Session owns it.
type Session struct {
	Context playwright.BrowserContext
	Page    playwright.Page
	RunID   string

	log       *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

func newSession(ctx playwright.BrowserContext, page playwright.Page, runID string) *Session {
	return &Session{
		Context: ctx,
		Page:    page,
		RunID:   runID,
		log:     obs.Pkg("session").With("run_id", runID),
	}
}

// Close clears the tab's local storage, then closes the tab and its context.
// A failure to clear storage is logged and ignored; the tab may already be
// gone or sitting on an origin without storage. Later calls return the
// first call's result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if _, err := s.Page.Evaluate("() => localStorage.clear()"); err != nil {
			s.log.Debug("clear local storage on close", "err", err)
		}

		var errList []error
		if err := s.Page.Close(); err != nil {
			errList = append(errList, fmt.Errorf("close tab: %w", err))
		}
		if err := s.Context.Close(); err != nil {
			errList = append(errList, fmt.Errorf("close context: %w", err))
		}
		s.closeErr = errors.Join(errList...)
	})
	return s.closeErr
}
