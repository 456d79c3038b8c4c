package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"kiira-hq/gateway/pkg/telemetry/logging"
	"kiira-hq/gateway/pkg/telemetry/metrics"
)

// responseWriter wraps http.ResponseWriter to capture status code. It
// passes Flush through so SSE responses keep streaming.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// newResponseWriter creates a new response writer wrapper.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code before writing.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures WriteHeader is called if not already done.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		if !rw.written {
			rw.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// routes are the paths reported as metric labels; anything else is "other".
var routes = map[string]bool{
	"/":                    true,
	"/health":              true,
	"/ready":               true,
	"/metrics":             true,
	"/v1/models":           true,
	"/v1/chat/completions": true,
}

// Route returns the metric label for a request path.
func Route(path string) string {
	if routes[path] {
		return path
	}
	return "other"
}

// LoggingMiddleware logs each request when it completes and records it in
// the request metrics. 5xx responses log at error level, 4xx at warn.
//
// Log format (JSON):
//
//	{
//	  "time": "2025-11-16T10:30:00Z",
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "request_id": "6f1c…",
//	  "method": "POST",
//	  "path": "/v1/chat/completions",
//	  "status": 200,
//	  "latency_ms": 1250
//	}
//
// Example usage:
//
//	handler = LoggingMiddleware(logger, collector)(handler)
func LoggingMiddleware(logger *slog.Logger, collector *metrics.Collector) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			ctx := context.WithValue(r.Context(), StartTimeKey, startTime)

			rw := newResponseWriter(w)

			logger.DebugContext(ctx, "request started",
				append(logging.Attrs(ctx),
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"user_agent", r.UserAgent(),
				)...)

			next.ServeHTTP(rw, r.WithContext(ctx))

			latency := time.Since(startTime)
			collector.RecordRequest(Route(r.URL.Path), r.Method, rw.statusCode, latency)

			logLevel := slog.LevelInfo
			if rw.statusCode >= 500 {
				logLevel = slog.LevelError
			} else if rw.statusCode >= 400 {
				logLevel = slog.LevelWarn
			}

			logger.Log(ctx, logLevel, "request completed",
				append(logging.Attrs(ctx),
					"method", r.Method,
					"path", r.URL.Path,
					"status", rw.statusCode,
					"latency_ms", latency.Milliseconds(),
					"remote_addr", r.RemoteAddr,
				)...)
		})
	}
}

// GetStartTime extracts the request start time from the context.
// Returns zero time if not found.
func GetStartTime(ctx context.Context) time.Time {
	if startTime, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return startTime
	}
	return time.Time{}
}
