// Package fakeapp is a self-contained replica of the Invoice Parser web
// application: the login, dashboard, upload, invoices and invoice detail
// screens, plus the backend JSON API under /api. Records live in an
// in-memory SQLite database and uploaded documents in S3.
//
// Extraction is asynchronous: POST /api/extract answers at once, and the
// record becomes searchable only after Options.ExtractDelay, the same
// settle time the real backend needs before an upload shows up in vendor
// search.
package fakeapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/invoice-e2e/internal/errs"
	"github.com/kuitang/invoice-e2e/internal/invoiceapi"
	"github.com/kuitang/invoice-e2e/internal/logutil"
	"github.com/kuitang/invoice-e2e/internal/obs"
	"github.com/kuitang/invoice-e2e/internal/s3client"
)

const (
	// AuthCookie is set by the login page on success and checked by the
	// route guard.
	AuthCookie = "auth"
	// InterstitialCookie records that the tunnel warning was dismissed.
	InterstitialCookie = "tunnel_warning_dismissed"

	DefaultVendor          = "SuperStore"
	DefaultMaxUploadBytes  = 10 << 20
	DefaultLoginRedirect   = 600 * time.Millisecond
	defaultMultipartMemory = 1 << 20
)

// Options configure the application.
type Options struct {
	// Vendor is assigned to documents that name none.
	Vendor string
	// ExtractDelay is how long an extraction takes to become searchable.
	ExtractDelay time.Duration
	// Interstitial serves a "Visit Site" warning page before the first page
	// view of a browser session.
	Interstitial bool
	// MaxUploadBytes caps uploaded documents.
	MaxUploadBytes int64
	// LoginRedirect delays the redirect after a successful sign in.
	LoginRedirect time.Duration
}

func (o Options) withDefaults() Options {
	if o.Vendor == "" {
		o.Vendor = DefaultVendor
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if o.LoginRedirect <= 0 {
		o.LoginRedirect = DefaultLoginRedirect
	}
	return o
}

// Server serves the application. Create it with New and release it with
// Close, which waits for pending extractions.
type Server struct {
	store     *Store
	docs      *s3client.Client
	renderer  *Renderer
	extractor *Extractor
	opts      Options
	log       *slog.Logger
	now       func() time.Time

	// mu orders persistLater's pending.Add against Close.
	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
	closing chan struct{}
	once    sync.Once
}

// New creates a server over store and docs.
func New(store *Store, docs *s3client.Client, opts Options) (*Server, error) {
	renderer, err := newEmbeddedRenderer()
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return &Server{
		store:     store,
		docs:      docs,
		renderer:  renderer,
		extractor: NewExtractor(opts.Vendor),
		opts:      opts,
		log:       obs.Pkg("fakeapp"),
		now:       time.Now,
		closing:   make(chan struct{}),
	}, nil
}

// Close abandons extractions still waiting out their delay and waits for
// in-flight writes.
func (s *Server) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.closing)
		s.mu.Unlock()
	})
	s.pending.Wait()
}

// WaitIdle blocks until every accepted extraction has been persisted.
func (s *Server) WaitIdle() {
	s.pending.Wait()
}

// Handler returns the application's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	page := func(h http.HandlerFunc) http.Handler { return s.interstitial(h) }
	guarded := func(h http.HandlerFunc) http.Handler { return s.interstitial(requireAuth(h)) }

	mux.Handle("GET /{$}", page(s.handleRoot))
	mux.Handle("GET /login", page(s.handleLogin))
	mux.Handle("GET /dashboard", guarded(s.handleDashboard))
	mux.Handle("GET /upload", guarded(s.handleUpload))
	mux.Handle("GET /invoices", guarded(s.handleInvoices))
	mux.Handle("GET /invoice/{id}", guarded(s.handleInvoice))

	mux.HandleFunc("POST /api/extract", s.handleExtract)
	mux.HandleFunc("GET /api/invoice/{id}", s.handleGetInvoice)
	mux.HandleFunc("GET /api/invoices/vendor/{vendor}", s.handleVendorInvoices)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/documents/{id}", s.handleDocument)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return obs.RequestContextMiddleware(obs.AccessLogMiddleware("fakeapp", mux))
}

type view struct {
	Nav  bool
	Page any
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data view) {
	if err := s.renderer.Render(w, status, name, data); err != nil {
		obs.From(r.Context()).Error("render failed", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func hasCookie(r *http.Request, name string) bool {
	c, err := r.Cookie(name)
	return err == nil && c.Value != ""
}

// requireAuth redirects to /login when the auth cookie is missing.
func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !hasCookie(r, AuthCookie) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) interstitial(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.opts.Interstitial || hasCookie(r, InterstitialCookie) {
			next.ServeHTTP(w, r)
			return
		}
		s.render(w, r, http.StatusOK, "interstitial.html", view{Page: struct {
			Host   string
			Cookie string
		}{Host: r.Host, Cookie: InterstitialCookie}})
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if hasCookie(r, AuthCookie) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "login.html", view{Page: struct {
		RedirectDelayMS int64
	}{RedirectDelayMS: s.opts.LoginRedirect.Milliseconds()}})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), s.now())
	if err != nil {
		// The dashboard shows zeros rather than failing.
		obs.From(r.Context()).Warn("dashboard stats unavailable", "error", err)
		stats = invoiceapi.DashboardStats{}
	}
	s.render(w, r, http.StatusOK, "dashboard.html", view{Nav: true, Page: struct {
		Stats invoiceapi.DashboardStats
	}{Stats: stats}})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "upload.html", view{Nav: true, Page: struct {
		MaxBytes int64
		MaxMB    int64
	}{MaxBytes: s.opts.MaxUploadBytes, MaxMB: s.maxUploadMB()}})
}

type sortOption struct {
	Value    Sort
	Label    string
	Selected bool
}

type resultRow struct {
	invoiceapi.Invoice
	Href string
}

type invoicesPage struct {
	Vendor      string
	Searched    bool
	SortOptions []sortOption
	Rows        []resultRow
	Total       int
	Page        int
	Pages       int
	PrevHref    string
	NextHref    string
}

func (s *Server) handleInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vendor := strings.TrimSpace(q.Get("vendor"))
	sort := Sort(q.Get("sort"))
	if _, ok := sortClauses[sort]; !ok {
		sort = SortDate
	}
	pageNum, _ := strconv.Atoi(q.Get("page"))

	data := invoicesPage{
		Vendor: vendor,
		SortOptions: []sortOption{
			{Value: SortDate, Label: "Date", Selected: sort == SortDate},
			{Value: SortTotal, Label: "Total", Selected: sort == SortTotal},
			{Value: SortVendor, Label: "Vendor", Selected: sort == SortVendor},
		},
	}

	if vendor != "" {
		result, err := s.store.Search(r.Context(), Query{Vendor: vendor, Sort: sort, Page: pageNum})
		if err != nil {
			obs.From(r.Context()).Error("invoice search failed", "vendor", vendor, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		data.Searched = true
		data.Total = result.Total
		data.Page = result.Page
		data.Pages = result.Pages()
		for _, inv := range result.Rows {
			data.Rows = append(data.Rows, resultRow{Invoice: inv, Href: "/invoice/" + url.PathEscape(inv.InvoiceID)})
		}
		if data.Page > 1 {
			data.PrevHref = searchHref(vendor, sort, data.Page-1)
		}
		if data.Page < data.Pages {
			data.NextHref = searchHref(vendor, sort, data.Page+1)
		}
	}
	s.render(w, r, http.StatusOK, "invoices.html", view{Nav: true, Page: data})
}

func searchHref(vendor string, sort Sort, page int) string {
	v := url.Values{}
	v.Set("vendor", vendor)
	v.Set("sort", string(sort))
	v.Set("page", strconv.Itoa(page))
	return "/invoices?" + v.Encode()
}

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resp, err := s.store.Invoice(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		s.render(w, r, http.StatusNotFound, "notfound.html", view{Nav: true, Page: struct {
			Message string
		}{Message: "Invoice not found"}})
		return
	}
	if err != nil {
		obs.From(r.Context()).Error("invoice load failed", "invoice_id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var documentHref string
	if _, err := s.store.DocumentKey(r.Context(), id); err == nil {
		documentHref = "/api/documents/" + url.PathEscape(id)
	}
	s.render(w, r, http.StatusOK, "invoice.html", view{Nav: true, Page: struct {
		Invoice      invoiceapi.Invoice
		Items        []invoiceapi.InvoiceItem
		DocumentHref string
	}{Invoice: resp.Invoice, Items: resp.Items, DocumentHref: documentHref}})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	log := obs.From(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+defaultMultipartMemory)
	if err := r.ParseMultipartForm(defaultMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, s.sizeMessage())
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()
	if header.Size > s.opts.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, s.sizeMessage())
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	resp, err := s.extractor.Extract(header.Filename, content)
	if err != nil {
		if errs.Is(err, errs.InvalidArgument) {
			writeError(w, http.StatusBadRequest, errs.MessageOf(err))
			return
		}
		log.Error("extraction failed", "filename", logutil.TruncateForLog(header.Filename, 120), "error", err)
		writeError(w, http.StatusInternalServerError, "Extraction failed")
		return
	}

	key := s3client.DocumentKey(header.Filename)
	if err := s.docs.PutDocument(r.Context(), key, content, "application/pdf"); err != nil {
		log.Error("document store failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store document")
		return
	}

	rec := ToRecord(resp, key, s.now())
	s.persistLater(obs.CorrelationFromContext(r.Context()), rec)

	log.Info("invoice extracted",
		"invoice_id", resp.Data.InvoiceID,
		"vendor", resp.Data.VendorName,
		"bytes", len(content),
		"confidence", resp.Confidence,
	)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) maxUploadMB() int64 {
	return (s.opts.MaxUploadBytes + 1<<20 - 1) >> 20
}

func (s *Server) sizeMessage() string {
	return fmt.Sprintf("File size must be less than %dMB", s.maxUploadMB())
}

// persistLater saves rec once the extract delay has passed. The write is
// detached from the request so the response is not held up. After Close
// nothing is scheduled. A record that never reaches the store has its
// document removed.
func (s *Server) persistLater(corr obs.Correlation, rec Record) {
	ctx := obs.WithCorrelation(context.Background(), corr)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		obs.From(ctx).Info("extraction abandoned on shutdown", "invoice_id", rec.Invoice.InvoiceID)
		s.discardDocument(ctx, rec.DocumentKey)
		return
	}
	s.pending.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.pending.Done()
		if s.opts.ExtractDelay > 0 {
			timer := time.NewTimer(s.opts.ExtractDelay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-s.closing:
				obs.From(ctx).Info("extraction abandoned on shutdown", "invoice_id", rec.Invoice.InvoiceID)
				s.discardDocument(ctx, rec.DocumentKey)
				return
			}
		}
		if err := s.store.Save(ctx, rec); err != nil {
			obs.From(ctx).Error("invoice save failed", "invoice_id", rec.Invoice.InvoiceID, "error", err)
			s.discardDocument(ctx, rec.DocumentKey)
			return
		}
		obs.From(ctx).Debug("invoice searchable", "invoice_id", rec.Invoice.InvoiceID)
	}()
}

func (s *Server) discardDocument(ctx context.Context, key string) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.docs.DeleteDocument(ctx, key); err != nil {
		obs.From(ctx).Warn("orphaned document not removed", "key", key, "error", err)
	}
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	resp, err := s.store.Invoice(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Invoice not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVendorInvoices(w http.ResponseWriter, r *http.Request) {
	vendor := strings.TrimSpace(r.PathValue("vendor"))
	resp, err := s.store.ByVendor(r.Context(), vendor)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "No invoices found for this vendor")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), s.now())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	key, err := s.store.DocumentKey(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	doc, err := s.docs.GetDocument(r.Context(), key)
	if errors.Is(err, s3client.ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", baseName(key)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	obs.From(r.Context()).Error("api request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"detail": message}, the backend's error envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
