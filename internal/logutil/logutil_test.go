package logutil

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestIsSensitiveLogField(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"password", "Password", "E2E_PASSWORD", "api-key", "Authorization", "session_cookie", "auth"} {
		if !IsSensitiveLogField(key) {
			t.Errorf("expected %q to be sensitive", key)
		}
	}
	for _, key := range []string{"username", "vendor", "path", "url"} {
		if IsSensitiveLogField(key) {
			t.Errorf("expected %q not to be sensitive", key)
		}
	}
}

func TestRedactAttrs_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		secret := rapid.StringMatching(`[a-zA-Z0-9]{1,32}`).Draw(t, "secret")
		user := rapid.StringMatching(`[a-z]{1,16}`).Draw(t, "user")

		in := []any{"username", user, "password", secret, "attempt", 1}
		out := RedactAttrs(in...)

		if out[1] != user {
			t.Fatalf("username changed: %v", out[1])
		}
		if out[3] != "[REDACTED]" {
			t.Fatalf("password not redacted: %v", out[3])
		}
		if in[3] != secret {
			t.Fatalf("input slice was mutated")
		}
		if out[5] != 1 {
			t.Fatalf("non-string value changed: %v", out[5])
		}
	})
}

func TestRedactAttrs_OddLength(t *testing.T) {
	t.Parallel()

	out := RedactAttrs("token")
	if len(out) != 1 || out[0] != "token" {
		t.Fatalf("unexpected output %v", out)
	}
}

func TestTruncateForLog_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		value := rapid.StringMatching(`[a-z\n ]{0,200}`).Draw(t, "value")
		limit := rapid.IntRange(1, 100).Draw(t, "limit")

		got := TruncateForLog(value, limit)
		if strings.Contains(got, "\n") {
			t.Fatalf("output contains newline: %q", got)
		}
		if len(got) > limit+len("... [truncated]") {
			t.Fatalf("output too long: %d > %d", len(got), limit)
		}
	})
}
