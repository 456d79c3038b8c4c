package gateway

import (
	"context"
	"errors"
	"fmt"

	"kiira-hq/gateway/pkg/agents"
	"kiira-hq/gateway/pkg/kiira"
	"kiira-hq/gateway/pkg/proxy/types"
	"kiira-hq/gateway/pkg/upstream"
)

// Kind classifies a gateway failure.
type Kind int

const (
	// KindInternal is an unexpected failure.
	KindInternal Kind = iota
	// KindInvalidRequest is a caller error detected before any upstream call.
	KindInvalidRequest
	// KindNotFound means the requested agent does not exist upstream.
	KindNotFound
	// KindUpstream is an upstream failure or unusable upstream answer.
	KindUpstream
	// KindTimeout is an upstream timeout.
	KindTimeout
)

// Error is a classified request failure.
type Error struct {
	Kind    Kind
	Code    string
	Param   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

func invalidRequest(param, code, message string) *Error {
	return &Error{Kind: KindInvalidRequest, Param: param, Code: code, Message: message}
}

// upstreamFailure classifies err from an upstream step.
func upstreamFailure(step string, err error) error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return err
	}
	var notFound *agents.NotFoundError
	if errors.As(err, &notFound) {
		return &Error{Kind: KindNotFound, Code: types.CodeAgentNotFound, Message: notFound.Error(), Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if upstream.IsTimeout(err) {
		return &Error{Kind: KindTimeout, Code: types.CodeUpstreamTimeout, Message: step + " timed out", Cause: err}
	}
	return &Error{Kind: KindUpstream, Code: types.CodeUpstreamError, Message: step + " failed", Cause: err}
}

// ErrorResponse converts err to the OpenAI error envelope.
func ErrorResponse(err error) *types.ErrorResponse {
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		switch {
		case errors.Is(err, context.Canceled):
			return types.NewServerError("request canceled")
		case upstream.IsTimeout(err):
			return types.NewGatewayTimeoutError(err.Error())
		default:
			return types.NewServerError("internal server error")
		}
	}

	switch gwErr.Kind {
	case KindInvalidRequest:
		return types.NewInvalidRequestError(gwErr.Message, gwErr.Param, gwErr.Code)
	case KindNotFound:
		return types.NewNotFoundError(gwErr.Message, gwErr.Code)
	case KindTimeout:
		return types.NewGatewayTimeoutError(gwErr.Error())
	case KindUpstream:
		return types.NewBadGatewayError(gwErr.Error(), gwErr.Code)
	default:
		return types.NewServerError(gwErr.Message)
	}
}

// outcome is the completion metric label for err.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		switch gwErr.Kind {
		case KindInvalidRequest, KindNotFound:
			return "client_error"
		case KindTimeout:
			return "timeout"
		case KindUpstream:
			return "upstream_error"
		}
	}
	if upstream.IsTimeout(err) {
		return "timeout"
	}
	var statusErr *upstream.StatusError
	var apiErr *kiira.APIError
	if errors.As(err, &statusErr) || errors.As(err, &apiErr) {
		return "upstream_error"
	}
	return "internal_error"
}
