// Package pages models each Invoice Parser screen as a typed page object.
//
// Every page object embeds *Base, which owns navigation, URL waits, fixed
// waits and locator resolution for one browser tab. Page objects built from
// the same Base share that tab; they must be driven from one goroutine at a
// time and must not outlive the session that owns the tab.
package pages

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/invoice-e2e/internal/errs"
	"github.com/kuitang/invoice-e2e/internal/obs"
)

// URL patterns for each screen. They are matched as unanchored regular
// expressions so query strings and record IDs are tolerated.
const (
	DashboardPattern     = `.*/dashboard`
	UploadPattern        = `.*/upload`
	InvoicesPattern      = `.*/invoices`
	InvoiceDetailPattern = `.*/invoice/.*`
	LoginPattern         = `.*/login`
)

// Tab is the slice of playwright.Page the page objects drive.
// playwright.Page satisfies it.
type Tab interface {
	Goto(url string, options ...playwright.PageGotoOptions) (playwright.Response, error)
	URL() string
	WaitForURL(url interface{}, options ...playwright.PageWaitForURLOptions) error
	WaitForTimeout(timeout float64)
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
	GetByRole(role playwright.AriaRole, options ...playwright.PageGetByRoleOptions) playwright.Locator
	Locator(selector string, options ...playwright.PageLocatorOptions) playwright.Locator
}

// Timeouts bounds every wait a page object performs.
type Timeouts struct {
	Short    time.Duration // URL waits and element actions
	Long     time.Duration // result rendering after slow backend queries
	Upload   time.Duration // backend processing after a file upload
	Optional time.Duration // optional elements such as interstitials
}

// DefaultTimeouts returns the bounds the scenario was written against.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Short:    5000 * time.Millisecond,
		Long:     30000 * time.Millisecond,
		Upload:   15000 * time.Millisecond,
		Optional: 2000 * time.Millisecond,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Short <= 0 {
		t.Short = d.Short
	}
	if t.Long <= 0 {
		t.Long = d.Long
	}
	if t.Upload <= 0 {
		t.Upload = d.Upload
	}
	if t.Optional <= 0 {
		t.Optional = d.Optional
	}
	return t
}

// Options configures a Base.
type Options struct {
	BaseURL  string
	Timeouts Timeouts
}

// Base holds the shared navigation and synchronization primitives.
type Base struct {
	tab      Tab
	baseURL  string
	timeouts Timeouts
	log      *slog.Logger
}

// NewBase binds a Base to tab.
func NewBase(tab Tab, opts Options) *Base {
	return &Base{
		tab:      tab,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		timeouts: opts.Timeouts.withDefaults(),
		log:      obs.Pkg("pages"),
	}
}

// Timeouts returns the effective wait bounds.
func (b *Base) Timeouts() Timeouts {
	return b.timeouts
}

// BaseURL returns the configured application root.
func (b *Base) BaseURL() string {
	return b.baseURL
}

// CurrentURL returns the tab's current URL.
func (b *Base) CurrentURL() string {
	return b.tab.URL()
}

// ResolveURL prefixes non-absolute paths with the base URL.
func (b *Base) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return b.baseURL + path
}

// NavigateTo performs a full navigation to path. It is not retried.
func (b *Base) NavigateTo(path string) error {
	target := b.ResolveURL(path)
	_, err := b.tab.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   millis(b.timeouts.Short),
	})
	if err != nil {
		return errs.Wrap(errs.Navigation, fmt.Sprintf("navigate to %s", target), err)
	}
	b.log.Debug("navigated", "url", target)
	return nil
}

// WaitForURL blocks until the current URL matches pattern. A non-positive
// timeout selects the short default.
func (b *Base) WaitForURL(pattern string, timeout time.Duration) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, fmt.Sprintf("invalid url pattern %q", pattern), err)
	}
	if timeout <= 0 {
		timeout = b.timeouts.Short
	}
	err = b.tab.WaitForURL(re, playwright.PageWaitForURLOptions{
		Timeout: millis(timeout),
	})
	if err != nil {
		return waitError(fmt.Sprintf("url %q not reached within %s (at %s)", pattern, timeout, b.tab.URL()), err)
	}
	return nil
}

// WaitForTimeout suspends unconditionally. Prefer an observable signal.
func (b *Base) WaitForTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	b.tab.WaitForTimeout(float64(d.Milliseconds()))
}

// ClearLocalStorage empties the origin's local storage. Calling it again is a no-op.
func (b *Base) ClearLocalStorage() error {
	if _, err := b.tab.Evaluate("() => localStorage.clear()"); err != nil {
		return errs.Wrap(errs.Internal, "clear local storage", err)
	}
	return nil
}

// Resolve turns a declarative locator into a lazily evaluated handle.
func (b *Base) Resolve(l Locator) playwright.Locator {
	if l.Role != "" {
		return b.GetByRole(l.Role, l.Name)
	}
	return b.GetByLocator(l.Selector)
}

// GetByRole addresses an element by ARIA role and optional accessible name.
func (b *Base) GetByRole(role, name string) playwright.Locator {
	if name == "" {
		return b.tab.GetByRole(playwright.AriaRole(role))
	}
	return b.tab.GetByRole(playwright.AriaRole(role), playwright.PageGetByRoleOptions{
		Name: name,
	})
}

// GetByLocator addresses an element by CSS (or any Playwright) selector.
func (b *Base) GetByLocator(selector string) playwright.Locator {
	return b.tab.Locator(selector)
}

// AttemptOptionalStep runs step with the optional-element timeout. A failure
// is logged and swallowed; the return value reports whether the step ran.
func (b *Base) AttemptOptionalStep(name string, step func(timeout time.Duration) error) bool {
	if err := step(b.timeouts.Optional); err != nil {
		b.log.Info("optional step skipped",
			"step", name,
			"code", errs.Optional,
			"reason", err.Error(),
		)
		return false
	}
	return true
}

func (b *Base) fill(l Locator, value string) error {
	err := b.Resolve(l).Fill(value, playwright.LocatorFillOptions{
		Timeout: millis(b.timeouts.Short),
	})
	if err != nil {
		return waitError(fmt.Sprintf("fill %s", l), err)
	}
	return nil
}

func (b *Base) click(l Locator) error {
	err := b.Resolve(l).Click(playwright.LocatorClickOptions{
		Timeout: millis(b.timeouts.Short),
	})
	if err != nil {
		return waitError(fmt.Sprintf("click %s", l), err)
	}
	return nil
}

// gotoAndConfirm navigates to path and waits for pattern.
func (b *Base) gotoAndConfirm(path, pattern string) error {
	if err := b.NavigateTo(path); err != nil {
		return err
	}
	return b.WaitForURL(pattern, b.timeouts.Short)
}

// waitError maps a Playwright wait failure onto the harness taxonomy.
func waitError(message string, err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return errs.Wrap(errs.Timeout, message, err)
	}
	return errs.Wrap(errs.Internal, message, err)
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}
