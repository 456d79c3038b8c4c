package kiira

import (
	"errors"
	"fmt"
	"net/http"

	"kiira-hq/gateway/pkg/upstream"
)

// statusOK is the status.code of a successful upstream envelope.
const statusOK = 10000

// ErrNoToken is returned when an authenticated call is made without a token.
var ErrNoToken = errors.New("kiira: no upstream token")

// APIError is returned when the upstream answers 2xx but the envelope
// carries no usable data.
type APIError struct {
	// Operation is the call that failed (e.g., "send_message")
	Operation string

	// Code is status.code from the envelope, 0 when absent
	Code int64

	// Message is status.msg from the envelope
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code == 0 && e.Message == "" {
		return fmt.Sprintf("kiira %s: response has no data", e.Operation)
	}
	return fmt.Sprintf("kiira %s failed: code %d: %s", e.Operation, e.Code, e.Message)
}

// MissingFieldError is returned when a required field is absent from an
// otherwise valid response.
type MissingFieldError struct {
	// Operation is the call whose response was incomplete
	Operation string

	// Field is the JSON path that was expected
	Field string
}

// Error implements the error interface.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("kiira %s: response missing %s", e.Operation, e.Field)
}

// MediaError is returned when an attached image cannot be read.
type MediaError struct {
	// Source is the (possibly truncated) image reference
	Source string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *MediaError) Error() string {
	return fmt.Sprintf("failed to read media %q: %v", e.Source, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *MediaError) Unwrap() error {
	return e.Cause
}

// IsAuthError reports whether err means the token was rejected.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrNoToken) {
		return true
	}
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden
	}
	return false
}
