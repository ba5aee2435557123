package pages

// Set bundles one page object per screen over a shared tab.
type Set struct {
	Base      *Base
	Login     *LoginPage
	Dashboard *DashboardPage
	Upload    *UploadPage
	Invoices  *InvoicesPage
	Detail    *InvoiceDetailPage
}

// NewSet builds every screen's page object over tab.
func NewSet(tab Tab, opts Options) *Set {
	base := NewBase(tab, opts)
	return &Set{
		Base:      base,
		Login:     NewLoginPage(base),
		Dashboard: NewDashboardPage(base),
		Upload:    NewUploadPage(base),
		Invoices:  NewInvoicesPage(base),
		Detail:    NewInvoiceDetailPage(base),
	}
}
