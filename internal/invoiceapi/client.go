// Package invoiceapi is a client for the Invoice Parser backend API. The
// harness uses it to observe backend state the UI does not expose, such as
// whether an uploaded document has been extracted.
package invoiceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kuitang/invoice-e2e/internal/logutil"
	"github.com/kuitang/invoice-e2e/internal/obs"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("invoice api: status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to one backend deployment.
type Client struct {
	baseURL    string
	httpClient *http.Client
	runID      string
	log        *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRunID tags every request with the scenario's run ID.
func WithRunID(runID string) Option {
	return func(c *Client) { c.runID = runID }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        obs.Pkg("invoiceapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract uploads a document as multipart field "file" and returns the
// extraction result.
func (c *Client) Extract(ctx context.Context, filename string, doc io.Reader) (*ExtractResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("invoice api: build upload: %w", err)
	}
	if _, err := io.Copy(part, doc); err != nil {
		return nil, fmt.Errorf("invoice api: read document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("invoice api: build upload: %w", err)
	}

	var out ExtractResponse
	if err := c.do(ctx, http.MethodPost, "/extract", mw.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*GetInvoiceResponse, error) {
	var out GetInvoiceResponse
	if err := c.do(ctx, http.MethodGet, "/invoice/"+url.PathEscape(invoiceID), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) InvoicesByVendor(ctx context.Context, vendor string) (*VendorInvoicesResponse, error) {
	var out VendorInvoicesResponse
	if err := c.do(ctx, http.MethodGet, "/invoices/vendor/"+url.PathEscape(vendor), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns dashboard statistics. Backends without a /stats endpoint
// yield zero values rather than an error.
func (c *Client) Stats(ctx context.Context) (*DashboardStats, error) {
	var out DashboardStats
	err := c.do(ctx, http.MethodGet, "/stats", "", nil, &out)
	if err != nil {
		if IsNotFound(err) {
			return &DashboardStats{}, nil
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("invoice api: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.runID != "" {
		req.Header.Set(obs.RunIDHeader, c.runID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoice api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("invoice api call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"dur_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		var envelope struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Detail != "" {
			msg = envelope.Detail
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: logutil.TruncateForLog(msg, 512)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invoice api: decode %s: %w", path, err)
	}
	return nil
}
