package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestFrom_CarriesCorrelation(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	ctx := WithCorrelation(context.Background(), Correlation{RunID: "run-1", Scenario: "invoice"})
	ctx = WithStep(ctx, " login ")
	From(ctx).Info("step started")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "run-1", lines[0]["run_id"])
	require.Equal(t, "invoice", lines[0]["scenario"])
	require.Equal(t, "login", lines[0]["step"])
	require.Equal(t, "step started", lines[0]["msg"])
}

func TestWithCorrelation_KeepsExistingFields(t *testing.T) {
	ctx := WithCorrelation(context.Background(), Correlation{RunID: "run-1", Scenario: "a"})
	ctx = WithCorrelation(ctx, Correlation{Step: "upload"})

	corr := CorrelationFromContext(ctx)
	require.Equal(t, Correlation{RunID: "run-1", Scenario: "a", Step: "upload"}, corr)
	require.Equal(t, Correlation{}, CorrelationFromContext(context.Background()))
}

func TestNewRunID_Unique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	require.True(t, strings.HasPrefix(a, "run-"))
	require.NotEqual(t, a, b)
}

func TestMiddleware_PropagatesRunID(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	var seen Correlation
	handler := RequestContextMiddleware(AccessLogMiddleware("test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set(RunIDHeader, "run-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "run-abc", seen.RunID)
	require.NotEmpty(t, seen.RequestID)
	require.Equal(t, seen.RequestID, rec.Header().Get("X-Request-Id"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	require.Equal(t, "http_access", lines[0]["msg"])
	require.Equal(t, float64(http.StatusTeapot), lines[0]["status"])
	require.Equal(t, "run-abc", lines[0]["run_id"])
}
