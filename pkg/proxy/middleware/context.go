package middleware

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// StartTimeKey stores the request start time for latency calculation.
// Request ids live under the logging package's key so every log line
// written with the request context carries them.
const StartTimeKey contextKey = "start_time"
