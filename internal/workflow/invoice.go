package workflow

import (
	"time"

	"github.com/kuitang/invoice-e2e/internal/config"
	"github.com/kuitang/invoice-e2e/internal/invoiceapi"
	"github.com/kuitang/invoice-e2e/internal/pages"
)

// InvoiceScenarioName identifies the upload-and-find scenario in logs.
const InvoiceScenarioName = "invoice_upload_search_view"

// Params are the inputs of the invoice scenario.
type Params struct {
	InvoicePath string
	Username    string
	Password    string
	Vendor      string
	// UploadTimeout bounds backend processing after upload; zero selects
	// the page's upload default.
	UploadTimeout time.Duration
	// DetailTimeout bounds the final arrival on the detail page; zero
	// selects the short default.
	DetailTimeout time.Duration
}

// ParamsFromConfig maps harness configuration onto scenario inputs.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		InvoicePath:   cfg.InvoicePath,
		Username:      cfg.Username,
		Password:      cfg.Password,
		Vendor:        cfg.Vendor,
		UploadTimeout: cfg.UploadTimeout,
		DetailTimeout: cfg.ShortTimeout,
	}
}

// NewPageSet builds page objects over tab from configuration. When an API
// base URL is configured the upload page polls the backend until the
// vendor's invoice count grows past what it was before the upload, instead
// of sleeping.
func NewPageSet(tab pages.Tab, cfg *config.Config, runID string) *pages.Set {
	set := pages.NewSet(tab, pages.Options{
		BaseURL: cfg.BaseURL,
		Timeouts: pages.Timeouts{
			Short:    cfg.ShortTimeout,
			Long:     cfg.LongTimeout,
			Upload:   cfg.UploadTimeout,
			Optional: cfg.OptionalTimeout,
		},
	})
	if cfg.UsesUploadProbe() {
		api := invoiceapi.New(cfg.APIBaseURL, invoiceapi.WithRunID(runID))
		set.Upload.WithCompletionWatch(api.VendorWatch(cfg.Vendor))
	}
	return set
}

// InvoiceScenario is the end-to-end flow: sign in, upload the fixture,
// search its vendor and open the first result.
//
//	root -> dashboard -> upload -> upload -> invoices -> invoices -> invoice_detail
//
// The dashboard routes to the invoices screen directly, so the hop back
// through it is not a separate confirmed state.
func InvoiceScenario(set *pages.Set, p Params) Scenario {
	return Scenario{
		Name:         InvoiceScenarioName,
		Precondition: RequireFixture(p.InvoicePath),
		Terminal:     StateInvoiceDetail,
		Steps: []Step{
			{
				Name:    "login",
				From:    StateRoot,
				To:      StateDashboard,
				Confirm: pages.DashboardPattern,
				Action: func() error {
					if err := set.Login.Goto(); err != nil {
						return err
					}
					return set.Login.Login(p.Username, p.Password)
				},
			},
			{
				Name:    "open upload",
				From:    StateDashboard,
				To:      StateUpload,
				Confirm: pages.UploadPattern,
				Action:  set.Dashboard.NavigateToUpload,
			},
			{
				Name:    "upload invoice",
				From:    StateUpload,
				To:      StateUpload,
				Confirm: pages.UploadPattern,
				Action: func() error {
					if err := set.Upload.UploadFile(p.InvoicePath); err != nil {
						return err
					}
					return set.Upload.WaitForUploadCompletion(p.UploadTimeout)
				},
			},
			{
				Name:    "open invoices",
				From:    StateUpload,
				To:      StateInvoices,
				Confirm: pages.InvoicesPattern,
				Action:  set.Dashboard.NavigateToInvoices,
			},
			{
				Name:    "search vendor",
				From:    StateInvoices,
				To:      StateInvoices,
				Confirm: pages.InvoicesPattern,
				Action: func() error {
					return set.Invoices.SearchByVendor(p.Vendor)
				},
			},
			{
				Name:           "view first result",
				From:           StateInvoices,
				To:             StateInvoiceDetail,
				Confirm:        pages.InvoiceDetailPattern,
				ConfirmTimeout: p.DetailTimeout,
				Action:         set.Invoices.ClickViewFirstResult,
			},
		},
	}
}
