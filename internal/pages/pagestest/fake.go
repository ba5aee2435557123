// Package pagestest provides an in-memory browser tab for exercising page
// objects without launching a browser.
package pagestest

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// FakeTab implements pages.Tab in memory. Elements are keyed
// "css:<selector>" or "role:<role>:<name>"; unknown keys resolve to absent
// elements that time out on every action. It is not safe for concurrent use
// beyond the event log.
type FakeTab struct {
	mu       sync.Mutex
	url      string
	events   []string
	waits    []float64
	urlWaits []time.Duration

	GotoErr  error
	Storage  map[string]string
	Elements map[string]*FakeElement
}

func NewFakeTab(start string) *FakeTab {
	return &FakeTab{
		url:      start,
		Storage:  map[string]string{},
		Elements: map[string]*FakeElement{},
	}
}

func (f *FakeTab) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

// Events returns the ordered log of navigations, evaluations and element
// actions, e.g. "goto:<url>" or "click:role:button:Sign In".
func (f *FakeTab) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// Waits returns every fixed wait in milliseconds.
func (f *FakeTab) Waits() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.waits...)
}

// URLWaits returns the timeout passed to every URL wait.
func (f *FakeTab) URLWaits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.urlWaits...)
}

func (f *FakeTab) SetURL(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = u
}

// Add registers a present element under key and returns it.
func (f *FakeTab) Add(key string) *FakeElement {
	el := &FakeElement{tab: f, key: key, Present: true}
	f.Elements[key] = el
	return el
}

func (f *FakeTab) element(key string) *FakeElement {
	if el, ok := f.Elements[key]; ok {
		return el
	}
	return &FakeElement{tab: f, key: key}
}

func (f *FakeTab) Goto(url string, _ ...playwright.PageGotoOptions) (playwright.Response, error) {
	f.record("goto:" + url)
	if f.GotoErr != nil {
		return nil, f.GotoErr
	}
	f.SetURL(url)
	return nil, nil
}

func (f *FakeTab) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

// WaitForURL resolves immediately: the URL either matches now or the wait
// times out.
func (f *FakeTab) WaitForURL(url interface{}, opts ...playwright.PageWaitForURLOptions) error {
	re, ok := url.(*regexp.Regexp)
	if !ok {
		return fmt.Errorf("fake tab only supports *regexp.Regexp, got %T", url)
	}
	var timeout float64
	if len(opts) > 0 && opts[0].Timeout != nil {
		timeout = *opts[0].Timeout
	}
	f.mu.Lock()
	f.urlWaits = append(f.urlWaits, time.Duration(timeout)*time.Millisecond)
	f.mu.Unlock()
	if re.MatchString(f.URL()) {
		return nil
	}
	return fmt.Errorf("%w: page.WaitForURL: Timeout %.0fms exceeded", playwright.ErrTimeout, timeout)
}

func (f *FakeTab) WaitForTimeout(timeout float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, timeout)
}

func (f *FakeTab) Evaluate(expression string, _ ...interface{}) (interface{}, error) {
	f.record("eval:" + expression)
	if strings.Contains(expression, "localStorage.clear()") {
		f.mu.Lock()
		f.Storage = map[string]string{}
		f.mu.Unlock()
	}
	return nil, nil
}

func (f *FakeTab) GetByRole(role playwright.AriaRole, opts ...playwright.PageGetByRoleOptions) playwright.Locator {
	name := ""
	if len(opts) > 0 && opts[0].Name != nil {
		name = fmt.Sprint(opts[0].Name)
	}
	return f.element(fmt.Sprintf("role:%s:%s", role, name))
}

func (f *FakeTab) Locator(selector string, _ ...playwright.PageLocatorOptions) playwright.Locator {
	return f.element("css:" + selector)
}

// locator is embedded under a lower-case name so the promoted field does not
// shadow playwright.Locator's own Locator method.
type locator = playwright.Locator

// FakeElement implements the Locator methods page objects call. Any other
// Locator method panics on the embedded nil interface.
type FakeElement struct {
	locator

	tab *FakeTab
	key string

	Present bool
	Text    string
	Matches int
	Value   string
	Files   interface{}
	OnClick func()
}

func (e *FakeElement) absent(action string) error {
	return fmt.Errorf("%w: %s %s: Timeout exceeded", playwright.ErrTimeout, action, e.key)
}

func (e *FakeElement) First() playwright.Locator {
	return e
}

func (e *FakeElement) Click(_ ...playwright.LocatorClickOptions) error {
	e.tab.record("click:" + e.key)
	if !e.Present {
		return e.absent("click")
	}
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *FakeElement) Fill(value string, _ ...playwright.LocatorFillOptions) error {
	e.tab.record("fill:" + e.key)
	if !e.Present {
		return e.absent("fill")
	}
	e.Value = value
	return nil
}

func (e *FakeElement) WaitFor(_ ...playwright.LocatorWaitForOptions) error {
	e.tab.record("waitfor:" + e.key)
	if !e.Present {
		return e.absent("wait for")
	}
	return nil
}

func (e *FakeElement) SetInputFiles(files interface{}, _ ...playwright.LocatorSetInputFilesOptions) error {
	e.tab.record("files:" + e.key)
	if !e.Present {
		return e.absent("set input files")
	}
	e.Files = files
	return nil
}

func (e *FakeElement) Count() (int, error) {
	if !e.Present {
		return 0, nil
	}
	return e.Matches, nil
}

func (e *FakeElement) InnerText(_ ...playwright.LocatorInnerTextOptions) (string, error) {
	if !e.Present {
		return "", e.absent("inner text")
	}
	return e.Text, nil
}

// NewInvoiceApp returns a tab that behaves like the Invoice Parser UI on
// the happy path: admin/admin signs in, a non-empty vendor search renders
// two results, and "View" opens invoice INV-37594.
func NewInvoiceApp(base string) *FakeTab {
	tab := NewFakeTab("about:blank")
	user := tab.Add("css:#username")
	pass := tab.Add("css:#password")
	tab.Add("role:button:Sign In").OnClick = func() {
		if user.Value == "admin" && pass.Value == "admin" {
			tab.SetURL(base + "/dashboard")
			return
		}
		tab.Add(`css:[data-sonner-toast][data-type="error"]`).Text = "Invalid credentials. Use admin/admin"
	}
	tab.Add(`css:input[type="file"]`)
	vendor := tab.Add("css:#vendor")
	tab.Add("role:button:Search").OnClick = func() {
		if vendor.Value == "" {
			return
		}
		view := tab.Add("role:link:View")
		view.Matches = 2
		view.OnClick = func() { tab.SetURL(base + "/invoice/INV-37594") }
	}
	tab.Add("role:button:Logout").OnClick = func() { tab.SetURL(base + "/login") }
	return tab
}
