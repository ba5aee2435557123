package browser

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/invoice-e2e/internal/fakeapp"
)

func TestWriteInvoice_ProducesExtractablePDF(t *testing.T) {
	path := WriteInvoice(t, "Acme Supplies", "T-42")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, fakeapp.IsPDF(content))

	resp, err := fakeapp.NewExtractor(fakeapp.DefaultVendor).Extract("invoice_T-42.pdf", content)
	require.NoError(t, err)
	require.Equal(t, "Acme Supplies", resp.Data.VendorName)
	require.Equal(t, "T-42", resp.Data.InvoiceID)
	require.InDelta(t, 13.50, resp.Data.InvoiceTotal, 0.001)
	require.Len(t, resp.Data.Items, 1)
}

func TestUniqueVendor(t *testing.T) {
	a, b := UniqueVendor(t), UniqueVendor(t)
	require.NotEqual(t, a, b)
	require.Regexp(t, `^Vendor[0-9A-F]{8}$`, a)
}
