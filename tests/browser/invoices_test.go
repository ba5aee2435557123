package browser

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/invoice-e2e/internal/errs"
	"github.com/kuitang/invoice-e2e/internal/fakeapp"
	"github.com/kuitang/invoice-e2e/internal/invoiceapi"
)

// seedInvoices stores one record per id under vendor, bypassing extraction.
func seedInvoices(t *testing.T, r *Replica, vendor string, ids ...string) {
	t.Helper()
	for i, id := range ids {
		err := r.App.Store.Save(context.Background(), fakeapp.Record{
			Invoice: invoiceapi.Invoice{
				InvoiceID:    id,
				VendorName:   vendor,
				InvoiceDate:  fmt.Sprintf("2024-02-%02d", i+1),
				InvoiceTotal: float64(100 * (i + 1)),
			},
			Confidence: 0.9,
			CreatedAt:  time.Now(),
		})
		require.NoError(t, err)
	}
}

func TestInvoices_SearchAndViewFirstResult(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	sess := env.NewSession(t)
	vendor := UniqueVendor(t)
	seedInvoices(t, env.App, vendor, "S-1", "S-2", "S-3")
	set := env.App.Pages(sess, vendor)
	login(t, set)

	require.NoError(t, set.Dashboard.NavigateToInvoices())
	require.NoError(t, set.Invoices.SearchByVendor(vendor))
	WaitForSelector(t, sess.Page, "text=View")

	n, err := set.Invoices.ResultCount()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.NoError(t, set.Invoices.ClickViewFirstResult())
	require.NoError(t, set.Detail.WaitForInvoiceDetailPage(0))
	require.True(t, set.Detail.IsOnInvoiceDetailPage())
	require.Contains(t, []string{"S-1", "S-2", "S-3"}, set.Detail.InvoiceID())
	WaitForSelector(t, sess.Page, "h1:has-text('Invoice Details')")
}

func TestInvoices_NoResults(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	sess := env.NewSession(t)
	vendor := UniqueVendor(t)
	set := env.App.Pages(sess, vendor)
	login(t, set)

	require.NoError(t, set.Invoices.Goto())
	require.NoError(t, set.Invoices.EnterVendorSearch(vendor))
	require.NoError(t, set.Invoices.ClickSearch())
	WaitForSelector(t, sess.Page, "text=No invoices found for "+vendor)

	n, err := set.Invoices.ResultCount()
	require.NoError(t, err)
	require.Zero(t, n)

	err = set.Invoices.ClickViewFirstResult()
	require.True(t, errs.Is(err, errs.Timeout), "got %v", err)
	require.Empty(t, set.Detail.InvoiceID())
}
