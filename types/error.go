package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across wingman.
type ErrorCode string

// Orchestration error codes
const (
	ErrConfig     ErrorCode = "CONFIG_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrCapability ErrorCode = "CAPABILITY_ERROR"
	ErrCancelled  ErrorCode = "CANCELLED"
)

// Service error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrUpstreamError  ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider records the upstream provider that produced the error.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// NewConfigError reports malformed or missing definitions.
func NewConfigError(message string, cause error) *Error {
	return NewError(ErrConfig, message).WithCause(cause)
}

// NewNotFoundError reports an unknown crew, task or agent identifier.
func NewNotFoundError(kind, id string) *Error {
	return Errorf(ErrNotFound, "%s %q not found", kind, id).WithHTTPStatus(http.StatusNotFound)
}

// NewCapabilityError wraps an executor failure for one unit.
func NewCapabilityError(taskID string, cause error) *Error {
	return Errorf(ErrCapability, "task %q failed", taskID).WithCause(cause)
}

// NewCancellationError reports a run aborted by its caller.
func NewCancellationError(cause error) *Error {
	return NewError(ErrCancelled, "run cancelled").WithCause(cause)
}

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether any *Error in the chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// IsCancellation reports whether err came from a context ending or a
// cancellation error.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		IsErrorCode(err, ErrCancelled)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HTTPStatusFor maps an error code to the status the API layer responds with.
func HTTPStatusFor(code ErrorCode) int {
	switch code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrCancelled:
		return http.StatusRequestTimeout
	case ErrUpstreamError, ErrCapability:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
