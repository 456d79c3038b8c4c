package logging

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestRedactor_RedactString(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name    string
		input   string
		secret  string
		wantSub string
	}{
		{"bearer header", "Authorization: Bearer abc.def-ghi", "abc.def-ghi", "Bearer ***"},
		{"sk key", "key=sk-1234567890abcdef", "1234567890abcdef", "sk-***"},
		{"jwt", "token eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig_part", "eyJzdWIiOiIxIn0", "eyJ***"},
		{"query token", "https://x/y?token=abcdef&b=1", "abcdef", "token=***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RedactString(tt.input)
			if strings.Contains(got, tt.secret) {
				t.Errorf("secret leaked: %q", got)
			}
			if !strings.Contains(got, tt.wantSub) {
				t.Errorf("expected %q in %q", tt.wantSub, got)
			}
		})
	}

	if got := r.RedactString("plain message"); got != "plain message" {
		t.Errorf("expected plain text untouched, got %q", got)
	}
}

func TestRedactor_ReplaceAttr(t *testing.T) {
	r := NewRedactor()

	a := r.ReplaceAttr(nil, slog.String("upstream_token", "abcdefghijkl"))
	if a.Value.String() != "abcd***" {
		t.Errorf("expected sensitive key to be masked, got %q", a.Value.String())
	}

	a = r.ReplaceAttr(nil, slog.Any("error", errors.New("login failed for Bearer xyz123")))
	if strings.Contains(a.Value.String(), "xyz123") {
		t.Errorf("expected error text to be redacted, got %q", a.Value.String())
	}

	a = r.ReplaceAttr(nil, slog.Int("status", 502))
	if a.Value.Int64() != 502 {
		t.Errorf("expected non-string attr untouched, got %v", a.Value)
	}
}

func TestRedactAPIKey(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"short":            "***",
		"sk-1234567890abc": "sk-1***",
	}
	for in, want := range tests {
		if got := RedactAPIKey(in); got != want {
			t.Errorf("RedactAPIKey(%q) = %q, want %q", in, got, want)
		}
	}
}
