package fakeapp

import (
	"bytes"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/invoice-e2e/internal/errs"
	"github.com/kuitang/invoice-e2e/internal/invoiceapi"
)

// Confidence assigned per field by where its value came from.
const (
	confidenceMarker   = 0.95
	confidenceFilename = 0.8
)

var (
	pdfMagic = []byte("%PDF-")

	// Extraction reads "Field: value" lines, optionally written as PDF
	// comments, e.g. "% VendorName: SuperStore".
	markerLine = regexp.MustCompile(`(?m)^%?[ \t]*([A-Za-z]+)[ \t]*:[ \t]*(.+?)[ \t]*\r?$`)

	// invoice_<First>_<Last>_<number>.pdf, the naming of the sample set.
	sampleName = regexp.MustCompile(`^invoice_([A-Za-z]+)_([A-Za-z]+)_(\d+)\.pdf$`)

	textPolicy = bluemonday.StrictPolicy()
)

// IsPDF reports whether content starts with the PDF header.
func IsPDF(content []byte) bool {
	return bytes.HasPrefix(content, pdfMagic)
}

// Extractor turns uploaded documents into invoice records.
type Extractor struct {
	// DefaultVendor is used when the document names no vendor.
	DefaultVendor string
	now           func() time.Time
}

func NewExtractor(defaultVendor string) *Extractor {
	return &Extractor{DefaultVendor: defaultVendor, now: time.Now}
}

// Extract reads invoice fields from content. Non-PDF content is rejected
// with errs.InvalidArgument. Every text field is stripped of markup.
func (e *Extractor) Extract(filename string, content []byte) (*invoiceapi.ExtractResponse, error) {
	start := e.now()
	if !IsPDF(content) {
		return nil, errs.New(errs.InvalidArgument, "Only PDF files are allowed")
	}

	fields := map[string]string{}
	var items []invoiceapi.ExtractionItem
	for _, m := range markerLine.FindAllSubmatch(content, -1) {
		key, value := string(m[1]), sanitizeText(string(m[2]))
		if value == "" {
			continue
		}
		if key == "Item" {
			if item, ok := parseItem(value); ok {
				items = append(items, item)
			}
			continue
		}
		if _, seen := fields[key]; !seen {
			fields[key] = value
		}
	}

	var (
		resp invoiceapi.ExtractResponse
		data = &resp.Data
		conf = &resp.DataConfidence
	)

	fileID, customer := "", ""
	if m := sampleName.FindStringSubmatch(baseName(filename)); m != nil {
		customer, fileID = m[1]+" "+m[2], m[3]
	}

	data.VendorName, conf.VendorName = pick(fields["VendorName"], "", e.DefaultVendor)
	data.InvoiceID, conf.InvoiceID = pick(fields["InvoiceId"], fileID, "")
	if data.InvoiceID == "" {
		data.InvoiceID = "INV-" + strings.ToUpper(uuid.NewString()[:8])
	}
	data.InvoiceDate, conf.InvoiceDate = pick(fields["InvoiceDate"], "", start.Format("2006-01-02"))
	data.ShippingAddress, conf.ShippingAddress = pick(fields["ShippingAddress"], "", "")
	if name, c := pick(fields["CustomerName"], customer, ""); name != "" {
		data.CustomerName, conf.CustomerName = &name, c
	}

	data.AmountDue, conf.AmountDue = pickAmount(fields["AmountDue"])
	data.ShippingCost, conf.ShippingCost = pickAmount(fields["ShippingCost"])
	if total, c := pickAmount(fields["InvoiceTotal"]); total != nil {
		data.InvoiceTotal, conf.InvoiceTotal = *total, c
	} else {
		for _, item := range items {
			data.InvoiceTotal += item.Amount
		}
	}

	for i := range items {
		items[i].InvoiceID = data.InvoiceID
	}
	data.Items = items
	if len(items) > 0 {
		conf.Items = confidenceMarker
	}
	if data.Items == nil {
		data.Items = []invoiceapi.ExtractionItem{}
	}

	resp.Confidence = (conf.VendorName + conf.InvoiceID + conf.InvoiceDate + conf.ShippingAddress +
		conf.CustomerName + conf.AmountDue + conf.ShippingCost + conf.InvoiceTotal + conf.Items) / 9
	resp.PredictionTime = e.now().Sub(start).Seconds()
	return &resp, nil
}

// ToRecord converts an extraction into a storable record.
func ToRecord(resp *invoiceapi.ExtractResponse, documentKey string, now time.Time) Record {
	d := resp.Data
	rec := Record{
		Invoice: invoiceapi.Invoice{
			InvoiceID:               d.InvoiceID,
			VendorName:              d.VendorName,
			InvoiceDate:             d.InvoiceDate,
			ShippingAddress:         d.ShippingAddress,
			BillingAddressRecipient: d.CustomerName,
			ShippingCost:            d.ShippingCost,
			InvoiceTotal:            d.InvoiceTotal,
		},
		Confidence:  resp.Confidence,
		DocumentKey: documentKey,
		CreatedAt:   now,
	}
	if d.ShippingCost != nil {
		sub := d.InvoiceTotal - *d.ShippingCost
		rec.Invoice.SubTotal = &sub
	}
	for _, item := range d.Items {
		rec.Items = append(rec.Items, invoiceapi.InvoiceItem{
			InvoiceID:   d.InvoiceID,
			Name:        item.Name,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      item.Amount,
		})
	}
	return rec
}

// parseItem reads "name | quantity | unit price". The amount is their product.
func parseItem(value string) (invoiceapi.ExtractionItem, bool) {
	parts := strings.Split(value, "|")
	if len(parts) != 3 {
		return invoiceapi.ExtractionItem{}, false
	}
	name := strings.TrimSpace(parts[0])
	qty, err1 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	price, err2 := parseMoney(parts[2])
	if name == "" || err1 != nil || err2 != nil {
		return invoiceapi.ExtractionItem{}, false
	}
	return invoiceapi.ExtractionItem{
		Name:      &name,
		Quantity:  &qty,
		UnitPrice: &price,
		Amount:    qty * price,
	}, true
}

func pick(marker, fallback, def string) (string, float64) {
	switch {
	case marker != "":
		return marker, confidenceMarker
	case fallback != "":
		return fallback, confidenceFilename
	default:
		return def, 0
	}
}

func pickAmount(raw string) (*float64, float64) {
	if raw == "" {
		return nil, 0
	}
	v, err := parseMoney(raw)
	if err != nil {
		return nil, 0
	}
	return &v, confidenceMarker
}

func parseMoney(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}

func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

func baseName(filename string) string {
	name := strings.ReplaceAll(filename, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
