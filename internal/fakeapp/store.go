package fakeapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/kuitang/invoice-e2e/internal/invoiceapi"
)

// SQLiteDriverName is the SQLCipher driver with the app's SQL functions.
const SQLiteDriverName = "sqlite3_invoice_fakeapp"

// ErrNotFound is returned when no invoice matches.
var ErrNotFound = errors.New("fakeapp: not found")

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("vendor_key", vendorKey, true); err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "already exists") {
					return nil
				}
				return fmt.Errorf("register vendor_key SQL function: %w", err)
			}
			return nil
		},
	})
}

// vendorKey folds case and runs of whitespace, so "superstore " matches a
// stored "SuperStore".
func vendorKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
    upload_id INTEGER PRIMARY KEY AUTOINCREMENT,
    invoice_id TEXT NOT NULL,
    vendor_name TEXT NOT NULL,
    invoice_date TEXT NOT NULL DEFAULT '',
    shipping_address TEXT NOT NULL DEFAULT '',
    billing_recipient TEXT,
    sub_total REAL,
    shipping_cost REAL,
    invoice_total REAL NOT NULL DEFAULT 0,
    confidence REAL NOT NULL DEFAULT 0,
    document_key TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invoices_invoice_id ON invoices(invoice_id);

CREATE TABLE IF NOT EXISTS invoice_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    upload_id INTEGER NOT NULL REFERENCES invoices(upload_id) ON DELETE CASCADE,
    invoice_id TEXT NOT NULL,
    name TEXT,
    description TEXT,
    quantity REAL,
    unit_price REAL,
    amount REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_invoice_items_upload_id ON invoice_items(upload_id);
`

// Record is one extracted invoice as persisted.
type Record struct {
	Invoice     invoiceapi.Invoice
	Items       []invoiceapi.InvoiceItem
	Confidence  float64
	DocumentKey string
	CreatedAt   time.Time
}

// Store keeps invoice records in an in-memory SQLite database. Every upload
// is its own record; reads by invoice ID see the latest upload of it.
type Store struct {
	db *sql.DB
}

// OpenStore creates a private in-memory database and applies the schema.
func OpenStore(ctx context.Context) (*Store, error) {
	dsn := fmt.Sprintf("file:invoices-%s?mode=memory&cache=shared", uuid.NewString())
	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open invoice database: %w", err)
	}

	// One connection keeps the shared-cache database alive and serializes
	// the extraction writer with page reads.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize invoice schema: %w", err)
	}
	return &Store{db: sqlDB}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save records one upload of rec and its line items.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.Invoice.InvoiceID) == "" {
		return errors.New("fakeapp: invoice id is required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inv := rec.Invoice
	res, err := tx.ExecContext(ctx, `
		INSERT INTO invoices (
			invoice_id, vendor_name, invoice_date, shipping_address, billing_recipient,
			sub_total, shipping_cost, invoice_total, confidence, document_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.InvoiceID, inv.VendorName, inv.InvoiceDate, inv.ShippingAddress, nullString(inv.BillingAddressRecipient),
		nullFloat(inv.SubTotal), nullFloat(inv.ShippingCost), inv.InvoiceTotal, rec.Confidence, rec.DocumentKey,
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save invoice %q: %w", inv.InvoiceID, err)
	}
	uploadID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read upload id of %q: %w", inv.InvoiceID, err)
	}

	for _, item := range rec.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (upload_id, invoice_id, name, description, quantity, unit_price, amount)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uploadID, inv.InvoiceID, nullString(item.Name), nullString(item.Description),
			nullFloat(item.Quantity), nullFloat(item.UnitPrice), item.Amount,
		)
		if err != nil {
			return fmt.Errorf("failed to save item of %q: %w", inv.InvoiceID, err)
		}
	}
	return tx.Commit()
}

const invoiceColumns = `invoice_id, vendor_name, invoice_date, shipping_address, billing_recipient,
	sub_total, shipping_cost, invoice_total`

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (invoiceapi.Invoice, error) {
	var (
		inv       invoiceapi.Invoice
		recipient sql.NullString
		subTotal  sql.NullFloat64
		shipping  sql.NullFloat64
	)
	err := row.Scan(&inv.InvoiceID, &inv.VendorName, &inv.InvoiceDate, &inv.ShippingAddress, &recipient,
		&subTotal, &shipping, &inv.InvoiceTotal)
	if err != nil {
		return inv, err
	}
	inv.BillingAddressRecipient = stringPtr(recipient)
	inv.SubTotal = floatPtr(subTotal)
	inv.ShippingCost = floatPtr(shipping)
	return inv, nil
}

// Invoice returns one invoice with its items, or ErrNotFound.
func (s *Store) Invoice(ctx context.Context, id string) (*invoiceapi.GetInvoiceResponse, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE invoice_id = ? ORDER BY upload_id DESC LIMIT 1", id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice %q: %w", id, err)
	}

	items, err := s.items(ctx, id)
	if err != nil {
		return nil, err
	}
	return &invoiceapi.GetInvoiceResponse{Invoice: inv, Items: items}, nil
}

func (s *Store) items(ctx context.Context, id string) ([]invoiceapi.InvoiceItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, name, description, quantity, unit_price, amount
		FROM invoice_items
		WHERE upload_id = (SELECT MAX(upload_id) FROM invoices WHERE invoice_id = ?)
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load items of %q: %w", id, err)
	}
	defer rows.Close()

	items := []invoiceapi.InvoiceItem{}
	for rows.Next() {
		var (
			item              invoiceapi.InvoiceItem
			name, description sql.NullString
			quantity, price   sql.NullFloat64
		)
		if err := rows.Scan(&item.ID, &item.InvoiceID, &name, &description, &quantity, &price, &item.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan item of %q: %w", id, err)
		}
		item.Name = stringPtr(name)
		item.Description = stringPtr(description)
		item.Quantity = floatPtr(quantity)
		item.UnitPrice = floatPtr(price)
		items = append(items, item)
	}
	return items, rows.Err()
}

// DocumentKey returns the storage key of the invoice's uploaded document.
func (s *Store) DocumentKey(ctx context.Context, id string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, "SELECT document_key FROM invoices WHERE invoice_id = ? ORDER BY upload_id DESC LIMIT 1", id).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && key == "") {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load document key of %q: %w", id, err)
	}
	return key, nil
}

// ByVendor returns every invoice of vendor with items, or ErrNotFound when
// the vendor has none.
func (s *Store) ByVendor(ctx context.Context, vendor string) (*invoiceapi.VendorInvoicesResponse, error) {
	page, err := s.Search(ctx, Query{Vendor: vendor, Sort: SortDate, PerPage: -1})
	if err != nil {
		return nil, err
	}
	if page.Total == 0 {
		return nil, ErrNotFound
	}

	resp := &invoiceapi.VendorInvoicesResponse{
		VendorName:    page.Rows[0].VendorName,
		TotalInvoices: page.Total,
		Invoices:      make([]invoiceapi.GetInvoiceResponse, 0, len(page.Rows)),
	}
	for _, inv := range page.Rows {
		items, err := s.items(ctx, inv.InvoiceID)
		if err != nil {
			return nil, err
		}
		resp.Invoices = append(resp.Invoices, invoiceapi.GetInvoiceResponse{Invoice: inv, Items: items})
	}
	return resp, nil
}

// Sort orders search results.
type Sort string

const (
	SortDate   Sort = "date"
	SortTotal  Sort = "total"
	SortVendor Sort = "vendor"
)

var sortClauses = map[Sort]string{
	SortDate:   "invoice_date DESC, invoice_id, upload_id DESC",
	SortTotal:  "invoice_total DESC, invoice_id, upload_id DESC",
	SortVendor: "vendor_name COLLATE NOCASE, invoice_id, upload_id DESC",
}

// DefaultPerPage is the invoices table page size.
const DefaultPerPage = 10

// Query selects one page of a vendor search. Page is 1-based; PerPage < 0
// returns every row.
type Query struct {
	Vendor  string
	Sort    Sort
	Page    int
	PerPage int
}

// Page is one page of search results.
type Page struct {
	Rows    []invoiceapi.Invoice
	Total   int
	Page    int
	PerPage int
}

// Pages returns the number of pages, at least 1.
func (p Page) Pages() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// Search runs a vendor search. Unknown sorts fall back to SortDate and
// out-of-range pages are clamped.
func (s *Store) Search(ctx context.Context, q Query) (Page, error) {
	order, ok := sortClauses[q.Sort]
	if !ok {
		order = sortClauses[SortDate]
	}
	if q.PerPage == 0 {
		q.PerPage = DefaultPerPage
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM invoices WHERE vendor_key(vendor_name) = vendor_key(?)", q.Vendor,
	).Scan(&total)
	if err != nil {
		return Page{}, fmt.Errorf("failed to count invoices of %q: %w", q.Vendor, err)
	}

	page := Page{Total: total, Page: 1, PerPage: q.PerPage, Rows: []invoiceapi.Invoice{}}
	if q.PerPage > 0 {
		page.Page = min(max(q.Page, 1), page.Pages())
	}

	limit, offset := -1, 0
	if q.PerPage > 0 {
		limit, offset = q.PerPage, (page.Page-1)*q.PerPage
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE vendor_key(vendor_name) = vendor_key(?) ORDER BY "+order+" LIMIT ? OFFSET ?",
		q.Vendor, limit, offset,
	)
	if err != nil {
		return Page{}, fmt.Errorf("failed to search invoices of %q: %w", q.Vendor, err)
	}
	defer rows.Close()

	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return Page{}, fmt.Errorf("failed to scan invoice: %w", err)
		}
		page.Rows = append(page.Rows, inv)
	}
	return page, rows.Err()
}

// RecentWindow bounds what the dashboard counts as a recent upload.
const RecentWindow = 24 * time.Hour

// Stats summarizes the store for the dashboard. Every upload counts.
func (s *Store) Stats(ctx context.Context, now time.Time) (invoiceapi.DashboardStats, error) {
	var (
		stats invoiceapi.DashboardStats
		avg   sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT vendor_key(vendor_name)),
		       COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
		       AVG(confidence)
		FROM invoices`, now.Add(-RecentWindow).Unix(),
	).Scan(&stats.TotalInvoices, &stats.TotalVendors, &stats.RecentUploads, &avg)
	if err != nil {
		return stats, fmt.Errorf("failed to compute stats: %w", err)
	}
	if avg.Valid {
		stats.AverageConfidence = avg.Float64
	}
	return stats, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}
