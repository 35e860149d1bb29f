package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the taxonomy a failure is classified into.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindAPI        ErrorKind = "api"
	KindValidation ErrorKind = "validation"
	KindClient     ErrorKind = "client"
	KindUnknown    ErrorKind = "unknown"
	KindCancelled  ErrorKind = "cancelled"
)

// Classification is the structured view of a failure.
// StatusCode is only set for KindAPI.
type Classification struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	StatusCode *int      `json:"status_code,omitempty"`
	Retryable  bool      `json:"retryable"`
}

// Status returns the status code, or 0 when the classification carries none.
func (c Classification) Status() int {
	if c.StatusCode == nil {
		return 0
	}
	return *c.StatusCode
}

// NetworkError marks a failure to reach the remote side at all
// (DNS, connection refused, reset, transport timeout).
type NetworkError struct {
	Message string
	Err     error
}

// NewNetworkError wraps a transport failure.
func NewNetworkError(err error) *NetworkError {
	msg := "network error"
	if err != nil {
		msg = err.Error()
	}
	return &NetworkError{Message: msg, Err: err}
}

func (e *NetworkError) Error() string {
	return e.Message
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError is a response from the remote side with a non-success status.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

// NewAPIError creates an APIError for the given status.
func NewAPIError(status int, message string) *APIError {
	return &APIError{StatusCode: status, Message: message}
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether a request that produced this status is worth
// repeating: server errors and request timeouts.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 408
}

// ValidationError is a rejected input. Field names the offending field when
// there is a single one; Errors holds field-level detail.
type ValidationError struct {
	Message string
	Field   string
	Errors  map[string]string
}

// NewValidationError creates a ValidationError with optional field detail.
func NewValidationError(message string, fields map[string]string) *ValidationError {
	return &ValidationError{Message: message, Errors: fields}
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
	}
	return "validation error: " + e.Message
}

// CancelledError is returned when an operation is abandoned because its
// context was cancelled. Last is the failure of the final attempt, if any.
type CancelledError struct {
	Cause error
	Last  error
}

func (e *CancelledError) Error() string {
	var b strings.Builder
	b.WriteString("operation cancelled")
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if e.Last != nil {
		b.WriteString(" (last error: ")
		b.WriteString(e.Last.Error())
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes both the context error and the last attempt failure to
// errors.Is and errors.As.
func (e *CancelledError) Unwrap() []error {
	var errs []error
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if e.Last != nil {
		errs = append(errs, e.Last)
	}
	return errs
}

// IsCancelled reports whether err is a CancelledError.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}
