package types

import (
	"strconv"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatCompletionRequest is the body of POST /v1/chat/completions.
type ChatCompletionRequest struct {
	// Model is the agent alias to talk to (e.g., "Nano Banana Pro").
	Model string `json:"model"`

	// Messages is the conversation as sent by the client.
	Messages []Message `json:"messages"`

	// Temperature is accepted for compatibility; the upstream ignores it.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens is accepted for compatibility; the upstream ignores it.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Stream selects a server-sent event response.
	Stream bool `json:"stream,omitempty"`

	// ConversationID continues an earlier conversation. It takes
	// precedence over a tag embedded in the messages.
	ConversationID string `json:"conversation_id,omitempty"`

	// User is an optional end-user identifier, logged only.
	User string `json:"user,omitempty"`
}

// Message is one turn of the conversation.
type Message struct {
	// Role is the author ("system", "user" or "assistant").
	Role string `json:"role"`

	// Content is a string or a list of text and image parts.
	Content Content `json:"content"`

	// Name is the optional author name.
	Name string `json:"name,omitempty"`
}

// Validate checks the fields that can be checked without the upstream.
func (r *ChatCompletionRequest) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &ValidationError{
			Field:   "model",
			Message: "model is required",
		}
	}

	if len(r.Messages) == 0 {
		return &ValidationError{
			Field:   "messages",
			Message: "messages must contain at least one message",
		}
	}

	if r.Temperature != nil && (*r.Temperature < 0.0 || *r.Temperature > 2.0) {
		return &ValidationError{
			Field:   "temperature",
			Message: "temperature must be between 0.0 and 2.0",
		}
	}

	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return &ValidationError{
			Field:   "max_tokens",
			Message: "max_tokens must be greater than 0",
		}
	}

	for i, msg := range r.Messages {
		if msg.Role == "" {
			return &ValidationError{
				Field:   "messages[" + strconv.Itoa(i) + "].role",
				Message: "message role is required",
			}
		}
	}

	return nil
}

// ValidationError represents a request validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Message
}
