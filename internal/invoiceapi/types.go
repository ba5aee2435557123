package invoiceapi

// Wire shapes of the Invoice Parser backend. Field names match the JSON the
// backend emits, which mixes PascalCase record fields with lowercase
// envelope keys.

type ExtractionItem struct {
	Description *string  `json:"Description"`
	Name        *string  `json:"Name"`
	Quantity    *float64 `json:"Quantity"`
	UnitPrice   *float64 `json:"UnitPrice"`
	Amount      float64  `json:"Amount"`
	InvoiceID   string   `json:"InvoiceId"`
}

type ExtractionData struct {
	VendorName      string           `json:"VendorName"`
	VendorNameLogo  string           `json:"VendorNameLogo"`
	InvoiceID       string           `json:"InvoiceId"`
	InvoiceDate     string           `json:"InvoiceDate"`
	ShippingAddress string           `json:"ShippingAddress"`
	CustomerName    *string          `json:"CustomerName"`
	AmountDue       *float64         `json:"AmountDue"`
	ShippingCost    *float64         `json:"ShippingCost"`
	InvoiceTotal    float64          `json:"InvoiceTotal"`
	Items           []ExtractionItem `json:"Items"`
}

// ExtractionConfidence holds per-field confidence in [0,1].
type ExtractionConfidence struct {
	VendorName      float64 `json:"VendorName"`
	InvoiceID       float64 `json:"InvoiceId"`
	InvoiceDate     float64 `json:"InvoiceDate"`
	ShippingAddress float64 `json:"ShippingAddress"`
	CustomerName    float64 `json:"CustomerName"`
	AmountDue       float64 `json:"AmountDue"`
	ShippingCost    float64 `json:"ShippingCost"`
	InvoiceTotal    float64 `json:"InvoiceTotal"`
	Items           float64 `json:"Items"`
}

// ExtractResponse is returned by POST /extract.
type ExtractResponse struct {
	Confidence     float64              `json:"confidence"`
	Data           ExtractionData       `json:"data"`
	DataConfidence ExtractionConfidence `json:"dataConfidence"`
	PredictionTime float64              `json:"predictionTime"`
}

type InvoiceItem struct {
	ID          int64    `json:"id"`
	InvoiceID   string   `json:"InvoiceId"`
	Name        *string  `json:"Name"`
	Description *string  `json:"Description"`
	Quantity    *float64 `json:"Quantity"`
	UnitPrice   *float64 `json:"UnitPrice"`
	Amount      float64  `json:"Amount"`
}

type Invoice struct {
	InvoiceID               string   `json:"InvoiceId"`
	VendorName              string   `json:"VendorName"`
	InvoiceDate             string   `json:"InvoiceDate"`
	ShippingAddress         string   `json:"ShippingAddress"`
	BillingAddressRecipient *string  `json:"BillingAddressRecipient"`
	SubTotal                *float64 `json:"SubTotal"`
	ShippingCost            *float64 `json:"ShippingCost"`
	InvoiceTotal            float64  `json:"InvoiceTotal"`
}

// GetInvoiceResponse is returned by GET /invoice/{id}.
type GetInvoiceResponse struct {
	Invoice Invoice       `json:"invoice"`
	Items   []InvoiceItem `json:"items"`
}

// VendorInvoicesResponse is returned by GET /invoices/vendor/{vendor}.
type VendorInvoicesResponse struct {
	VendorName    string               `json:"VendorName"`
	TotalInvoices int                  `json:"TotalInvoices"`
	Invoices      []GetInvoiceResponse `json:"invoices"`
}

// DashboardStats is returned by GET /stats when the backend supports it.
type DashboardStats struct {
	TotalInvoices     int     `json:"totalInvoices"`
	TotalVendors      int     `json:"totalVendors"`
	RecentUploads     int     `json:"recentUploads"`
	AverageConfidence float64 `json:"averageConfidence"`
}
