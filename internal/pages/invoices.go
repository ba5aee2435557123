package pages

import (
	"log/slog"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/invoice-e2e/internal/errs"
)

var (
	invoicesVendorInput = BySelector("#vendor")
	invoicesSearch      = ByRole("button", "Search")
	invoicesViewLink    = ByRole("link", "View")
)

// InvoicesPage drives vendor search and the results table.
type InvoicesPage struct {
	*Base
	log *slog.Logger
}

func NewInvoicesPage(base *Base) *InvoicesPage {
	return &InvoicesPage{Base: base, log: base.log.With("page", "invoices")}
}

func (p *InvoicesPage) Goto() error {
	return p.gotoAndConfirm("/invoices", InvoicesPattern)
}

func (p *InvoicesPage) EnterVendorSearch(name string) error {
	return p.fill(invoicesVendorInput, name)
}

func (p *InvoicesPage) ClickSearch() error {
	return p.click(invoicesSearch)
}

// SearchByVendor fills the vendor field and submits the search.
func (p *InvoicesPage) SearchByVendor(name string) error {
	p.log.Info("search", "vendor", name)
	if err := p.EnterVendorSearch(name); err != nil {
		return err
	}
	return p.ClickSearch()
}

// ClickViewFirstResult waits up to the long timeout for the first "View"
// link to become visible and only then clicks it.
func (p *InvoicesPage) ClickViewFirstResult() error {
	first := p.Resolve(invoicesViewLink).First()
	if err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: millis(p.timeouts.Long),
	}); err != nil {
		return waitError("no visible search result", err)
	}
	if err := first.Click(playwright.LocatorClickOptions{
		Timeout: millis(p.timeouts.Short),
	}); err != nil {
		return waitError("click first search result", err)
	}
	return nil
}

// ResultCount returns how many "View" links are rendered right now.
func (p *InvoicesPage) ResultCount() (int, error) {
	n, err := p.Resolve(invoicesViewLink).Count()
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "count search results", err)
	}
	return n, nil
}
