// Command fakeapp serves a local replica of the Invoice Parser so the harness
// can run without the real deployment.
//
// Usage:
//
//	go run ./cmd/fakeapp -addr :3000 -extract-delay 2s
//	APP_URL=http://localhost:3000 API_BASE_URL=http://localhost:3000/api go run ./cmd/invoice-e2e
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/invoice-e2e/internal/fakeapp"
	"github.com/kuitang/invoice-e2e/internal/obs"
)

type options struct {
	addr string
	app  fakeapp.Options
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("fakeapp", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.addr, "addr", ":3000", "Listen address")
	fs.StringVar(&o.app.Vendor, "vendor", fakeapp.DefaultVendor, "Vendor assigned to documents that name none")
	fs.DurationVar(&o.app.ExtractDelay, "extract-delay", 2*time.Second, "Time before an upload becomes searchable")
	fs.BoolVar(&o.app.Interstitial, "interstitial", false, `Serve a "Visit Site" warning before the first page`)
	fs.Int64Var(&o.app.MaxUploadBytes, "max-upload-bytes", fakeapp.DefaultMaxUploadBytes, "Upload size limit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.app.ExtractDelay < 0 {
		return options{}, errors.New("-extract-delay must not be negative")
	}
	return o, nil
}

func main() {
	obs.Init()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fakeapp: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	log := obs.Pkg("fakeapp")

	app, err := fakeapp.Start(ctx, opts.app)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", opts.addr, "extract_delay", opts.app.ExtractDelay.String(), "interstitial", opts.app.Interstitial)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
