// Package browser contains Playwright-driven tests of the page objects and
// the invoice scenario against in-process replicas of the Invoice Parser.
package browser

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/invoice-e2e/internal/config"
	"github.com/kuitang/invoice-e2e/internal/fakeapp"
	"github.com/kuitang/invoice-e2e/internal/obs"
	"github.com/kuitang/invoice-e2e/internal/pages"
	"github.com/kuitang/invoice-e2e/internal/session"
	"github.com/kuitang/invoice-e2e/internal/workflow"
)

const (
	// browserMaxTimeoutMS bounds every browser wait in this suite.
	browserMaxTimeoutMS = 5000
	browserMaxTimeout   = browserMaxTimeoutMS * time.Millisecond

	// browserOptionalTimeout keeps absent-interstitial probes short.
	browserOptionalTimeout = time.Second

	// browserExtractDelay is how long an upload stays unsearchable.
	browserExtractDelay = 300 * time.Millisecond
)

var (
	browserFixtureMu     sync.Mutex
	browserSharedFixture *browserFixture
)

// Replica is one running fake application.
type Replica struct {
	App    *fakeapp.App
	Server *httptest.Server
}

// BaseURL is the replica's root URL.
func (r *Replica) BaseURL() string {
	return r.Server.URL
}

// APIBaseURL is the replica's JSON API root.
func (r *Replica) APIBaseURL() string {
	return r.Server.URL + "/api"
}

type browserFixture struct {
	launcher     *session.Launcher
	app          *Replica
	interstitial *Replica
}

// BrowserTestEnv gives a test a launched browser and the shared replicas.
type BrowserTestEnv struct {
	launcher *session.Launcher

	// App serves pages directly.
	App *Replica
	// Interstitial serves a "Visit Site" warning before the first page.
	Interstitial *Replica
}

// SetupBrowserTestEnv returns the shared environment, starting it on first
// use. A browser that cannot be launched skips the test.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	fixture, err := getOrCreateSharedBrowserFixtureLocked()
	if err != nil {
		t.Skipf("browser environment unavailable: %v", err)
	}
	return &BrowserTestEnv{
		launcher:     fixture.launcher,
		App:          fixture.app,
		Interstitial: fixture.interstitial,
	}
}

func getOrCreateSharedBrowserFixtureLocked() (*browserFixture, error) {
	if browserSharedFixture != nil {
		return browserSharedFixture, nil
	}

	launcher, err := InitBrowser()
	if err != nil {
		return nil, err
	}
	app, err := startReplica(fakeapp.Options{ExtractDelay: browserExtractDelay})
	if err != nil {
		launcher.Close()
		return nil, err
	}
	interstitial, err := startReplica(fakeapp.Options{ExtractDelay: browserExtractDelay, Interstitial: true})
	if err != nil {
		app.close()
		launcher.Close()
		return nil, err
	}

	browserSharedFixture = &browserFixture{
		launcher:     launcher,
		app:          app,
		interstitial: interstitial,
	}
	return browserSharedFixture, nil
}

func startReplica(opts fakeapp.Options) (*Replica, error) {
	app, err := fakeapp.Start(context.Background(), opts)
	if err != nil {
		return nil, fmt.Errorf("start fake app: %w", err)
	}
	return &Replica{App: app, Server: httptest.NewServer(app.Handler())}, nil
}

func (r *Replica) close() {
	r.Server.Close()
	r.App.Close()
}

func cleanupSharedBrowserFixtureLocked() {
	if browserSharedFixture == nil {
		return
	}
	browserSharedFixture.interstitial.close()
	browserSharedFixture.app.close()
	browserSharedFixture.launcher.Close()
	browserSharedFixture = nil
}

// CleanupSharedBrowserTestEnv stops the shared browser and replicas.
func CleanupSharedBrowserTestEnv() {
	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()
	cleanupSharedBrowserFixtureLocked()
}

// InitBrowser launches headless Chromium with the suite's default timeout.
func InitBrowser() (*session.Launcher, error) {
	opts := session.OptionsFromConfig(config.Default())
	opts.DefaultTimeout = browserMaxTimeout
	return session.Launch(opts)
}

// NewSession opens a fresh browser context and tab, closed with the test.
func (env *BrowserTestEnv) NewSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := env.launcher.NewSession(obs.NewRunID())
	if err != nil {
		t.Fatalf("failed to open browser session: %v", err)
	}
	t.Cleanup(func() {
		if err := sess.Close(); err != nil {
			t.Logf("session close: %v", err)
		}
	})
	return sess
}

// Config returns harness configuration pointed at r with the suite's bounds.
func (r *Replica) Config(invoicePath, vendor string) *config.Config {
	cfg := config.Default()
	cfg.BaseURL = r.BaseURL()
	cfg.APIBaseURL = r.APIBaseURL()
	cfg.InvoicePath = invoicePath
	if vendor != "" {
		cfg.Vendor = vendor
	}
	cfg.ShortTimeout = browserMaxTimeout
	cfg.LongTimeout = browserMaxTimeout
	cfg.UploadTimeout = browserMaxTimeout
	cfg.OptionalTimeout = browserOptionalTimeout
	return cfg
}

// Pages builds page objects for sess against r. The upload page polls r's
// API for vendor.
func (r *Replica) Pages(sess *session.Session, vendor string) *pages.Set {
	return workflow.NewPageSet(sess.Page, r.Config("", vendor), sess.RunID)
}

// UniqueVendor returns a vendor name no other test uses.
func UniqueVendor(t *testing.T) string {
	t.Helper()
	return "Vendor" + strings.ToUpper(uuid.NewString()[:8])
}

// WriteInvoice writes a minimal PDF naming vendor and invoiceID into a
// temporary directory and returns its path.
func WriteInvoice(t *testing.T, vendor, invoiceID string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("invoice_%s.pdf", invoiceID))
	if err := os.WriteFile(path, invoicePDF(vendor, invoiceID), 0o600); err != nil {
		t.Fatalf("failed to write invoice fixture: %v", err)
	}
	return path
}

func invoicePDF(vendor, invoiceID string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	fmt.Fprintf(&b, "%% VendorName: %s\n", vendor)
	fmt.Fprintf(&b, "%% InvoiceId: %s\n", invoiceID)
	b.WriteString("% InvoiceDate: 2024-01-15\n")
	b.WriteString("% CustomerName: Test Customer\n")
	b.WriteString("% Item: Paper | 3 | 4.50\n")
	b.WriteString("% InvoiceTotal: 13.50\n")
	b.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	return []byte(b.String())
}

// Navigate loads url and waits for DOMContentLoaded.
func Navigate(t *testing.T, page playwright.Page, url string) {
	t.Helper()
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(browserMaxTimeoutMS),
	}); err != nil {
		t.Fatalf("failed to navigate to %s: %v", url, err)
	}
}

// WaitForSelector waits for selector to become visible and dumps the page
// on failure.
func WaitForSelector(t *testing.T, page playwright.Page, selector string) playwright.Locator {
	t.Helper()
	locator := page.Locator(selector)
	if err := locator.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(browserMaxTimeoutMS),
	}); err != nil {
		title, _ := page.Title()
		content, _ := page.Content()
		if len(content) > 2000 {
			content = content[:2000]
		}
		t.Fatalf("selector %q not visible: %v\nurl: %s\ntitle: %s\ncontent: %s", selector, err, page.URL(), title, content)
	}
	return locator
}

// InnerText returns the trimmed text of the first element matching selector.
func InnerText(t *testing.T, page playwright.Page, selector string) string {
	t.Helper()
	text, err := WaitForSelector(t, page, selector).First().InnerText()
	if err != nil {
		t.Fatalf("failed to read %q: %v", selector, err)
	}
	return strings.TrimSpace(text)
}
