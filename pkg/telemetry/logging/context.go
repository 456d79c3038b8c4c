package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// SessionKey is the context key for conversation handles.
	SessionKey contextKey = "session"

	// ModelKey is the context key for requested model names.
	ModelKey contextKey = "model"

	// AgentKey is the context key for the bound upstream agent.
	AgentKey contextKey = "agent"

	// TaskIDKey is the context key for upstream exchange ids.
	TaskIDKey contextKey = "task_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// WithSession adds a conversation handle to the context.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// GetSession retrieves the conversation handle from the context.
func GetSession(ctx context.Context) string {
	return stringValue(ctx, SessionKey)
}

// WithModel adds a model name to the context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// GetModel retrieves the model name from the context.
func GetModel(ctx context.Context) string {
	return stringValue(ctx, ModelKey)
}

// WithAgent adds the bound agent name to the context.
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, AgentKey, agent)
}

// GetAgent retrieves the bound agent name from the context.
func GetAgent(ctx context.Context) string {
	return stringValue(ctx, AgentKey)
}

// WithTaskID adds an upstream exchange id to the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// GetTaskID retrieves the upstream exchange id from the context.
func GetTaskID(ctx context.Context) string {
	return stringValue(ctx, TaskIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// contextFieldOrder fixes the order fields appear in log lines.
var contextFieldOrder = []contextKey{RequestIDKey, SessionKey, ModelKey, AgentKey, TaskIDKey}

// extractContextFields extracts common fields from context for logging.
// Returns a slice of key-value pairs suitable for logger.With().
func extractContextFields(ctx context.Context) []any {
	var fields []any
	for _, key := range contextFieldOrder {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}
	return fields
}

// Attrs returns the context's log fields as key/value pairs for use with a
// plain *slog.Logger.
func Attrs(ctx context.Context) []any {
	return extractContextFields(ctx)
}
