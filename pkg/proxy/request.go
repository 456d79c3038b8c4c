package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"kiira-hq/gateway/pkg/proxy/types"
)

const (
	// MaxRequestBodySize is the maximum allowed request body size (10MB).
	// Inline base64 images make bodies larger than a typical chat request.
	MaxRequestBodySize = 10 * 1024 * 1024

	// AuthorizationHeader carries "Bearer <key>".
	AuthorizationHeader = "Authorization"

	// APIKeyHeader is the alternative to a bearer token.
	APIKeyHeader = "X-API-Key"

	// RequestIDHeader is the HTTP header for request ID propagation.
	RequestIDHeader = "X-Request-ID"
)

// ParseChatCompletionRequest decodes the body of a chat completion request.
// Field validation is left to the gateway, which knows the configured
// agents.
//
// Example usage:
//
//	req, err := ParseChatCompletionRequest(r)
//	if err != nil {
//	    WriteErrorResponse(w, HandleError(err))
//	    return
//	}
func ParseChatCompletionRequest(r *http.Request) (*types.ChatCompletionRequest, error) {
	// One byte over the limit tells an oversized body from one that fits exactly.
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	if len(body) > MaxRequestBodySize {
		return nil, &RequestError{
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", MaxRequestBodySize),
			Code:    types.CodeRequestTooLarge,
			Param:   "body",
		}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, &RequestError{
			Message: "request body is empty",
			Code:    types.CodeInvalidJSON,
			Param:   "body",
		}
	}

	var req types.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &RequestError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
			Code:    types.CodeInvalidJSON,
			Param:   "body",
		}
	}

	return &req, nil
}

// ExtractAPIKey returns the caller's key from "Authorization: Bearer <key>",
// falling back to the X-API-Key header. Empty when neither is present.
func ExtractAPIKey(r *http.Request) string {
	if authHeader := r.Header.Get(AuthorizationHeader); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}

// ExtractRequestID extracts the request ID from the X-Request-ID header.
// If the header is not present, it returns an empty string.
func ExtractRequestID(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}

// RequestError represents a request parsing error.
type RequestError struct {
	Message string
	Code    string
	Param   string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// ToErrorResponse converts a RequestError to an OpenAI-compatible error response.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	return types.NewInvalidRequestError(e.Message, e.Param, e.Code)
}

// IsRequestError reports whether err is a body parsing error.
func IsRequestError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr)
}
