package middleware

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds the request context of short, non-streaming
// routes. Handlers see the deadline through r.Context(); they own writing
// the error response, so nothing races the handler for the writer.
//
// Example usage:
//
//	mux.Handle("GET /v1/models", TimeoutMiddleware(30*time.Second)(models))
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
