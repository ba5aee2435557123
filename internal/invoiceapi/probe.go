package invoiceapi

import (
	"context"
	"strings"

	"github.com/kuitang/invoice-e2e/internal/pages"
)

// vendorSnapshot is what the backend lists for one vendor at one moment.
type vendorSnapshot struct {
	total int
	ids   map[string]bool
}

func (c *Client) vendorSnapshot(ctx context.Context, vendor string) (vendorSnapshot, error) {
	resp, err := c.InvoicesByVendor(ctx, vendor)
	if err != nil {
		if IsNotFound(err) {
			return vendorSnapshot{ids: map[string]bool{}}, nil
		}
		return vendorSnapshot{}, err
	}
	snap := vendorSnapshot{total: resp.TotalInvoices, ids: make(map[string]bool, len(resp.Invoices))}
	for _, inv := range resp.Invoices {
		snap.ids[inv.Invoice.InvoiceID] = true
	}
	snap.total = max(snap.total, len(resp.Invoices))
	return snap, nil
}

// VendorWatch records how many invoices the backend lists for vendor before
// an upload. Its probe reports done once that count has grown, so invoices
// left by earlier runs do not count. When the growth brings an invoice ID
// that was not listed before, the probe also waits until that invoice can be
// fetched. A 404 from the vendor listing means "no invoices".
func (c *Client) VendorWatch(vendor string) pages.CompletionWatch {
	vendor = strings.TrimSpace(vendor)
	return func(ctx context.Context) (pages.CompletionProbe, error) {
		before, err := c.vendorSnapshot(ctx, vendor)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (bool, error) {
			now, err := c.vendorSnapshot(ctx, vendor)
			if err != nil {
				return false, err
			}
			if now.total <= before.total {
				return false, nil
			}
			for id := range now.ids {
				if !before.ids[id] {
					return c.InvoiceProbe(id)(ctx)
				}
			}
			return true, nil
		}, nil
	}
}

// InvoiceProbe reports completion once invoiceID can be fetched.
func (c *Client) InvoiceProbe(invoiceID string) pages.CompletionProbe {
	return func(ctx context.Context) (bool, error) {
		if _, err := c.GetInvoice(ctx, invoiceID); err != nil {
			if IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
}
