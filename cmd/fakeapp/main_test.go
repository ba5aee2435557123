package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/invoice-e2e/internal/fakeapp"
)

func TestParseFlags(t *testing.T) {
	o, err := parseFlags(nil)
	require.NoError(t, err)
	require.Equal(t, ":3000", o.addr)
	require.Equal(t, fakeapp.DefaultVendor, o.app.Vendor)
	require.Equal(t, 2*time.Second, o.app.ExtractDelay)
	require.False(t, o.app.Interstitial)

	o, err = parseFlags([]string{"-addr", "127.0.0.1:0", "-extract-delay", "0", "-interstitial", "-vendor", "Acme"})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:0", o.addr)
	require.Zero(t, o.app.ExtractDelay)
	require.True(t, o.app.Interstitial)
	require.Equal(t, "Acme", o.app.Vendor)

	_, err = parseFlags([]string{"-extract-delay", "-1s"})
	require.Error(t, err)
	_, err = parseFlags([]string{"-bogus"})
	require.Error(t, err)
}
