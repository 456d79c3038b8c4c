package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"kiira-hq/gateway/pkg/config"
	"kiira-hq/gateway/pkg/proxy"
	"kiira-hq/gateway/pkg/proxy/types"
	"kiira-hq/gateway/pkg/telemetry/logging"
)

const (
	msgMissingKey = "Missing API Key. Please provide API Key via Authorization header (Bearer token) or X-API-Key header."
	msgInvalidKey = "Invalid API Key"
)

// AuthMiddleware checks the shared API key on every request. The key comes
// from "Authorization: Bearer <key>" or X-API-Key. When the configured key
// is empty or the default sentinel, every request passes.
//
// Example usage:
//
//	v1 = AuthMiddleware(cfg.Auth, logger)(v1)
func AuthMiddleware(cfg config.AuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if cfg.AuthDisabled() {
			logger.Warn("API key not configured or left at the default; authentication is disabled")
			return next
		}
		want := []byte(cfg.APIKey)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := proxy.ExtractAPIKey(r)
			if key == "" {
				unauthorized(w, msgMissingKey)
				logger.WarnContext(r.Context(), "request without API key",
					append(logging.Attrs(r.Context()), "path", r.URL.Path)...)
				return
			}
			if subtle.ConstantTimeCompare([]byte(key), want) != 1 {
				unauthorized(w, msgInvalidKey)
				logger.WarnContext(r.Context(), "invalid API key",
					append(logging.Attrs(r.Context()), "path", r.URL.Path, "api_key", logging.RedactAPIKey(key))...)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	errResp := types.NewAuthenticationError(message)
	errResp.Error.Code = types.CodeInvalidAPIKey
	_ = proxy.WriteErrorResponse(w, errResp)
}
