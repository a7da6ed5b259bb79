// Package collaberrors provides structured error classification for
// collaborator invocations and response extraction.
package collaberrors

import (
	"errors"
	"fmt"
)

// ErrorType categorizes collaborator failures for retry decisions.
type ErrorType int8

const (
	// ErrorTypeThrottling represents rate limiting by the hosted model service
	// (429, throttlingException). The only retryable class: the invoker backs
	// off and tries again.
	ErrorTypeThrottling ErrorType = iota
	// ErrorTypeTransient represents 5xx, EOF, connection reset, timeout.
	ErrorTypeTransient
	// ErrorTypeParse represents a response the extractor could not recover a
	// structured payload from. Fails the stage, never retried.
	ErrorTypeParse
	// ErrorTypeAuth represents authentication failures (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadRequest represents malformed requests (too long, rejected).
	ErrorTypeBadRequest
	// ErrorTypeUnknown is the default for unclassified errors.
	ErrorTypeUnknown
	// ErrorTypeRetryExhausted is emitted by the invoker after the retry budget
	// is spent on throttling failures. Carries the last underlying error.
	ErrorTypeRetryExhausted
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeThrottling:
		return "throttling"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeParse:
		return "parse"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadRequest:
		return "bad_request"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeRetryExhausted:
		return "retry_exhausted"
	default:
		return "invalid"
	}
}

// Error represents a classified collaborator error.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	BodyStub   string    // First portion of the offending response text
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
	Attempts   int       // Attempts made before a retry exhaustion
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("collaborator error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("collaborator error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("collaborator error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the invoker should back off and retry.
// Only throttling is retried; every other class fails the attempt outright.
func (e *Error) IsRetryable() bool {
	return e.Type == ErrorTypeThrottling
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not
// classified.
func TypeOf(err error) ErrorType {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Type
	}
	return ErrorTypeUnknown
}

// IsThrottling reports whether the error is throttling-class, and therefore
// retryable by the invoker.
func IsThrottling(err error) bool {
	return Is(err, ErrorTypeThrottling)
}

// NewError creates a new classified error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithStatus creates a new classified error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewErrorWithCause creates a new classified error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// NewParseError creates a parse error carrying a stub of the response text
// that could not be recovered. The stub is capped at 500 characters.
func NewParseError(cause error, responseText string) *Error {
	const maxStub = 500
	stub := responseText
	if len(stub) > maxStub {
		stub = stub[:maxStub]
	}
	return &Error{
		Type:     ErrorTypeParse,
		Err:      cause,
		Message:  "failed to extract structured payload from response",
		BodyStub: stub,
	}
}

// NewRetryExhaustedError wraps the last throttling error after the retry
// budget is spent.
func NewRetryExhaustedError(cause error, attempts int) *Error {
	return &Error{
		Type:     ErrorTypeRetryExhausted,
		Err:      cause,
		Message:  fmt.Sprintf("retries exhausted after %d attempts", attempts),
		Attempts: attempts,
	}
}
