package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks credentials in log fields: upstream session tokens, bearer
// headers and sk- style API keys.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternJWT         = "jwt"
	PatternTokenParam  = "token_param"
)

// sensitiveKeys are attribute names whose values are always masked.
var sensitiveKeys = []string{
	"token", "api_key", "apikey", "authorization", "secret", "password",
}

// NewRedactor creates a Redactor with the built-in patterns.
func NewRedactor() *Redactor {
	defs := []struct {
		name        string
		regex       string
		replacement string
	}{
		// Bearer credentials in echoed headers.
		{PatternBearerToken, `(?i)Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
		// Upstream session tokens are JWTs.
		{PatternJWT, `eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]*`, "eyJ***"},
		// OpenAI-style keys presented by callers.
		{PatternAPIKey, `sk-[a-zA-Z0-9_-]{4,}`, "sk-***"},
		// token=... in URLs and query strings.
		{PatternTokenParam, `(?i)(token=)[^&\s"]+`, "${1}***"},
	}

	r := &Redactor{}
	for _, d := range defs {
		r.patterns = append(r.patterns, &redactPattern{
			name:        d.name,
			regex:       regexp.MustCompile(d.regex),
			replacement: d.replacement,
		})
	}
	return r
}

// RedactString masks every credential found in value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook. Values of
// sensitive keys are masked entirely; other string and error values have
// embedded credentials masked.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		if isSensitiveKey(a.Key) {
			return slog.String(a.Key, RedactAPIKey(a.Value.String()))
		}
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// RedactAPIKey redacts a credential, keeping only a short prefix.
func RedactAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return "***"
	}
	return apiKey[:4] + "***"
}
