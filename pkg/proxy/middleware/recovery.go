package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"kiira-hq/gateway/pkg/proxy"
	"kiira-hq/gateway/pkg/proxy/types"
	"kiira-hq/gateway/pkg/telemetry/logging"
)

// RecoveryMiddleware turns a handler panic into a 500 OpenAI error
// envelope and logs the stack. http.ErrAbortHandler is re-raised so
// net/http can abort the connection quietly.
//
// Example usage:
//
//	handler = RecoveryMiddleware(logger)(handler)
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "panic in handler",
					append(logging.Attrs(r.Context()),
						"panic", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)...)

				_ = proxy.WriteErrorResponse(w, types.NewServerError(
					"An internal error occurred. Please try again later.",
				))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
