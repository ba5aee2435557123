// Package e2e runs the invoice scenario against a deployed Invoice Parser
// named by APP_URL. Without APP_URL every test skips.
package e2e

import (
	"path/filepath"
	"runtime"

	"github.com/kuitang/invoice-e2e/internal/config"
)

func repositoryRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot resolve repository root in tests/e2e")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

// fixturePath resolves a relative invoice path against the repository root
// so the suite does not depend on the working directory of go test.
func fixturePath(path string) string {
	if path == "" {
		path = config.DefaultInvoicePath
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(repositoryRoot(), path)
}
