package fakeapp

import (
	"context"
	"fmt"

	"github.com/kuitang/invoice-e2e/internal/s3client"
)

// DocumentBucket is the bucket uploads are stored in.
const DocumentBucket = "invoice-documents"

// App is a Server together with the in-memory stores it owns.
type App struct {
	*Server
	Store *Store
	Docs  *s3client.Client

	stopS3 func()
}

// Start opens an in-memory store and an in-memory S3 bucket and builds a
// server over them.
func Start(ctx context.Context, opts Options) (*App, error) {
	store, err := OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	docs, stopS3, err := s3client.NewInMemory(ctx, DocumentBucket)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to start document storage: %w", err)
	}
	srv, err := New(store, docs, opts)
	if err != nil {
		stopS3()
		store.Close()
		return nil, err
	}
	return &App{Server: srv, Store: store, Docs: docs, stopS3: stopS3}, nil
}

// Close stops the server's background work and releases both stores.
func (a *App) Close() error {
	a.Server.Close()
	a.stopS3()
	return a.Store.Close()
}
