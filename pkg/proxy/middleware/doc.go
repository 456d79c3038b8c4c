// Package middleware provides the HTTP middleware of the gateway.
//
// Each middleware is a func(http.Handler) http.Handler (or a plain
// wrapper when it takes no options) so the chain composes in order:
//
//	handler = middleware.RecoveryMiddleware(logger)(
//	    middleware.LoggingMiddleware(logger, collector)(
//	        middleware.RequestIDMiddleware(
//	            middleware.CORSMiddleware(cors)(mux))))
//
// AuthMiddleware guards only the /v1 routes; /health, / and /metrics stay
// open. TimeoutMiddleware puts a deadline on short routes and is never
// applied to streaming completions, whose lifetime is bounded by the
// upstream exchange timeout instead.
//
// The logging wrapper keeps http.Flusher working so Server-Sent Events
// pass through untouched.
package middleware
