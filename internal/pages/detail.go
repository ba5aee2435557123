package pages

import (
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// InvoiceDetailPage is the single-invoice screen at /invoice/{id}.
type InvoiceDetailPage struct {
	*Base
	log *slog.Logger
}

func NewInvoiceDetailPage(base *Base) *InvoiceDetailPage {
	return &InvoiceDetailPage{Base: base, log: base.log.With("page", "invoice_detail")}
}

// IsOnInvoiceDetailPage waits up to the short timeout for a detail URL.
// It never returns an error: any failure reads as false.
func (p *InvoiceDetailPage) IsOnInvoiceDetailPage() bool {
	if err := p.WaitForURL(InvoiceDetailPattern, p.timeouts.Short); err != nil {
		p.log.Debug("not on invoice detail page", "url", p.CurrentURL(), "err", err)
		return false
	}
	return true
}

// WaitForInvoiceDetailPage fails unless a detail URL is reached within
// timeout (short default when non-positive).
func (p *InvoiceDetailPage) WaitForInvoiceDetailPage(timeout time.Duration) error {
	return p.WaitForURL(InvoiceDetailPattern, timeout)
}

// InvoiceID returns the decoded record identifier from the current URL, or
// "" when the tab is not on a detail page.
func (p *InvoiceDetailPage) InvoiceID() string {
	return invoiceIDFromURL(p.CurrentURL())
}

func invoiceIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	idx := strings.LastIndex(u.EscapedPath(), "/invoice/")
	if idx < 0 {
		return ""
	}
	rest := u.EscapedPath()[idx+len("/invoice/"):]
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	id, err := url.PathUnescape(rest)
	if err != nil {
		return ""
	}
	return id
}
