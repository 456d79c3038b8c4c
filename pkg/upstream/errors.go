package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrTransportClosed is returned by calls made after Close.
var ErrTransportClosed = errors.New("upstream transport closed")

// errExchangeTimeout is the cancellation cause of a stream whose exchange
// ceiling elapsed.
var errExchangeTimeout = errors.New("upstream exchange ceiling reached")

// Timeout phases.
const (
	PhaseConnect  = "connect"
	PhaseRead     = "read"
	PhaseWrite    = "write"
	PhaseRequest  = "request"
	PhaseExchange = "exchange"
)

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	// Operation is the logical call that failed (e.g., "login")
	Operation string

	// StatusCode is the HTTP status code returned upstream
	StatusCode int

	// Body is the (possibly truncated) response body
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// TimeoutError is returned when one of the independent timeouts elapses.
type TimeoutError struct {
	// Operation is the logical call that timed out
	Operation string

	// Phase is which limit was hit: connect, read, write, request or exchange
	Phase string

	// Timeout is the configured limit for the phase
	Timeout time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("upstream %s %s timeout after %s", e.Operation, e.Phase, e.Timeout)
}

// Unwrap returns the underlying error for error chain support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// PoolTimeoutError is returned when no connection slot frees up in time.
type PoolTimeoutError struct {
	// Operation is the logical call that could not acquire a slot
	Operation string

	// Wait is how long the call waited
	Wait time.Duration
}

// Error implements the error interface.
func (e *PoolTimeoutError) Error() string {
	return fmt.Sprintf("upstream %s: no connection slot available after %s", e.Operation, e.Wait)
}

// ParseError is returned when an upstream body cannot be decoded.
type ParseError struct {
	// Operation is the logical call whose response failed to parse
	Operation string

	// Raw is the (possibly truncated) body that failed to parse
	Raw string

	// Cause is the underlying parse error
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("upstream %s response parse error: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err is worth retrying for an idempotent call:
// connection-level failures and 5xx/429 answers. Pool and exchange timeouts,
// caller cancellation and 4xx answers are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrTransportClosed) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == 429
	}

	var poolErr *PoolTimeoutError
	if errors.As(err, &poolErr) {
		return false
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Phase == PhaseConnect || timeoutErr.Phase == PhaseRead
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, errConnection)
}

// IsTimeout reports whether err is any kind of upstream timeout.
func IsTimeout(err error) bool {
	var timeoutErr *TimeoutError
	var poolErr *PoolTimeoutError
	return errors.As(err, &timeoutErr) || errors.As(err, &poolErr)
}

// errConnection marks transport failures that never produced a response.
var errConnection = errors.New("upstream connection failed")

// connectionError wraps a transport failure so IsRetryable recognises it.
type connectionError struct {
	op    string
	cause error
}

func (e *connectionError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.op, e.cause)
}

func (e *connectionError) Unwrap() []error {
	return []error{errConnection, e.cause}
}
