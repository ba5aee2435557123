package pages

import "log/slog"

var dashboardLogout = ByRole("button", "Logout")

// DashboardPage is the authenticated hub. It routes between screens and
// carries no form state.
type DashboardPage struct {
	*Base
	log *slog.Logger
}

func NewDashboardPage(base *Base) *DashboardPage {
	return &DashboardPage{Base: base, log: base.log.With("page", "dashboard")}
}

func (p *DashboardPage) Goto() error {
	return p.gotoAndConfirm("/dashboard", DashboardPattern)
}

func (p *DashboardPage) NavigateToUpload() error {
	p.log.Debug("route", "to", "upload")
	return p.gotoAndConfirm("/upload", UploadPattern)
}

func (p *DashboardPage) NavigateToInvoices() error {
	p.log.Debug("route", "to", "invoices")
	return p.gotoAndConfirm("/invoices", InvoicesPattern)
}

// Logout signs out from the navigation bar and waits for the login screen.
func (p *DashboardPage) Logout() error {
	if err := p.click(dashboardLogout); err != nil {
		return err
	}
	return p.WaitForURL(LoginPattern, p.timeouts.Short)
}
