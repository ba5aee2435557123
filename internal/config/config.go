// Package config provides centralized configuration for the invoice-e2e harness.
// It loads configuration from environment variables with optional CLI flag
// overrides, validates it, and provides the defaults the scenario was written
// against.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL         = "http://localhost:3000"
	DefaultInvoicePath     = "invoices_sample/invoice_Anthony_Jacobs_37594.pdf"
	DefaultShortTimeout    = 5000 * time.Millisecond
	DefaultLongTimeout     = 30000 * time.Millisecond
	DefaultUploadTimeout   = 15000 * time.Millisecond
	DefaultOptionalTimeout = 2000 * time.Millisecond
	DefaultUsername        = "admin"
	DefaultPassword        = "admin"
	DefaultVendor          = "SuperStore"
	DefaultViewportWidth   = 1280
	DefaultViewportHeight  = 720
)

// Config holds all harness configuration.
type Config struct {
	// Application under test
	BaseURL    string // APP_URL (BASE_URL accepted as alias)
	APIBaseURL string // API_BASE_URL; empty means upload completion uses a fixed wait

	// Browser
	Headless       bool
	SlowMo         time.Duration
	ViewportWidth  int
	ViewportHeight int

	// Scenario inputs
	InvoicePath string
	Username    string
	Password    string
	Vendor      string

	// Wait bounds
	ShortTimeout    time.Duration
	LongTimeout     time.Duration
	UploadTimeout   time.Duration
	OptionalTimeout time.Duration
}

// Flags are CLI overrides applied on top of the environment.
type Flags struct {
	BaseURL     string
	InvoicePath string
	Headed      bool
	Summary     bool
	// HTMLReport, when set, is where the run report is written as HTML.
	HTMLReport string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses harness CLI flags from args.
func ParseFlags(args []string) (Flags, error) {
	var f Flags
	fs := flag.NewFlagSet("invoice-e2e", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.BaseURL, "base-url", "", "Application base URL (overrides APP_URL)")
	fs.StringVar(&f.InvoicePath, "invoice", "", "Invoice fixture path (overrides TEST_INVOICE_PATH)")
	fs.BoolVar(&f.Headed, "headed", false, "Show the browser window (overrides HEADLESS)")
	fs.BoolVar(&f.Summary, "summary", true, "Print the configuration summary to stderr")
	fs.StringVar(&f.HTMLReport, "html-report", "", "Write the run report as HTML to this path")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// LoadConfig loads configuration from environment variables and applies flag overrides.
func LoadConfig(flags Flags) (*Config, error) {
	cfg := &Config{}

	cfg.BaseURL = strings.TrimSpace(os.Getenv("APP_URL"))
	if cfg.BaseURL == "" {
		cfg.BaseURL = getEnvOrDefault("BASE_URL", DefaultBaseURL)
	}
	if flags.BaseURL != "" {
		cfg.BaseURL = flags.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("API_BASE_URL")), "/")

	cfg.Headless = parseBoolOrDefault("HEADLESS", true)
	if flags.Headed {
		cfg.Headless = false
	}
	cfg.SlowMo = parseTimeoutOrDefault("E2E_SLOW_MO", 0)
	cfg.ViewportWidth = parseIntOrDefault("E2E_VIEWPORT_WIDTH", DefaultViewportWidth)
	cfg.ViewportHeight = parseIntOrDefault("E2E_VIEWPORT_HEIGHT", DefaultViewportHeight)

	cfg.InvoicePath = getEnvOrDefault("TEST_INVOICE_PATH", DefaultInvoicePath)
	if flags.InvoicePath != "" {
		cfg.InvoicePath = flags.InvoicePath
	}
	cfg.Username = getEnvOrDefault("E2E_USERNAME", DefaultUsername)
	cfg.Password = getEnvOrDefault("E2E_PASSWORD", DefaultPassword)
	cfg.Vendor = getEnvOrDefault("E2E_VENDOR", DefaultVendor)

	cfg.ShortTimeout = parseTimeoutOrDefault("E2E_SHORT_TIMEOUT", DefaultShortTimeout)
	cfg.LongTimeout = parseTimeoutOrDefault("E2E_LONG_TIMEOUT", DefaultLongTimeout)
	cfg.UploadTimeout = parseTimeoutOrDefault("E2E_UPLOAD_TIMEOUT", DefaultUploadTimeout)
	cfg.OptionalTimeout = parseTimeoutOrDefault("E2E_OPTIONAL_TIMEOUT", DefaultOptionalTimeout)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration the harness uses with an empty environment.
func Default() *Config {
	return &Config{
		BaseURL:         DefaultBaseURL,
		Headless:        true,
		ViewportWidth:   DefaultViewportWidth,
		ViewportHeight:  DefaultViewportHeight,
		InvoicePath:     DefaultInvoicePath,
		Username:        DefaultUsername,
		Password:        DefaultPassword,
		Vendor:          DefaultVendor,
		ShortTimeout:    DefaultShortTimeout,
		LongTimeout:     DefaultLongTimeout,
		UploadTimeout:   DefaultUploadTimeout,
		OptionalTimeout: DefaultOptionalTimeout,
	}
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if !isHTTPURL(c.BaseURL) {
		errs = append(errs, fmt.Sprintf("APP_URL must be an absolute http(s) URL, got %q", c.BaseURL))
	}
	if c.APIBaseURL != "" && !isHTTPURL(c.APIBaseURL) {
		errs = append(errs, fmt.Sprintf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL))
	}
	if strings.TrimSpace(c.InvoicePath) == "" {
		errs = append(errs, "TEST_INVOICE_PATH must not be empty")
	}
	if c.Username == "" {
		errs = append(errs, "E2E_USERNAME must not be empty")
	}
	if strings.TrimSpace(c.Vendor) == "" {
		errs = append(errs, "E2E_VENDOR must not be empty")
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		errs = append(errs, "E2E_VIEWPORT_WIDTH and E2E_VIEWPORT_HEIGHT must be positive")
	}

	if c.ShortTimeout <= 0 {
		errs = append(errs, "E2E_SHORT_TIMEOUT must be positive")
	}
	if c.LongTimeout <= 0 {
		errs = append(errs, "E2E_LONG_TIMEOUT must be positive")
	}
	if c.UploadTimeout <= 0 {
		errs = append(errs, "E2E_UPLOAD_TIMEOUT must be positive")
	}
	if c.OptionalTimeout <= 0 {
		errs = append(errs, "E2E_OPTIONAL_TIMEOUT must be positive")
	}
	if c.SlowMo < 0 {
		errs = append(errs, "E2E_SLOW_MO must not be negative")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// UsesUploadProbe reports whether upload completion can be polled against the backend API.
func (c *Config) UsesUploadProbe() bool {
	return c.APIBaseURL != ""
}

// PrintStartupSummary prints a human-readable summary of the configuration.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "invoice-e2e starting...")
	fmt.Fprintf(w, "  App:      %s\n", c.BaseURL)
	if c.UsesUploadProbe() {
		fmt.Fprintf(w, "  API:      %s (upload completion polled)\n", c.APIBaseURL)
	} else {
		fmt.Fprintf(w, "  API:      not set (fixed %s upload wait)\n", c.UploadTimeout)
	}
	if c.Headless {
		fmt.Fprintln(w, "  Browser:  chromium (headless)")
	} else {
		fmt.Fprintln(w, "  Browser:  chromium (headed)")
	}
	fmt.Fprintf(w, "  Invoice:  %s\n", c.InvoicePath)
	fmt.Fprintf(w, "  Vendor:   %s\n", c.Vendor)
	fmt.Fprintf(w, "  Timeouts: short=%s long=%s upload=%s optional=%s\n",
		c.ShortTimeout, c.LongTimeout, c.UploadTimeout, c.OptionalTimeout)
	fmt.Fprintln(w, "")
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseTimeoutOrDefault accepts Go durations ("5s") or bare milliseconds ("5000").
func parseTimeoutOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// MustLoadConfig loads configuration and panics if validation fails.
func MustLoadConfig(flags Flags) *Config {
	cfg, err := LoadConfig(flags)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
