package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents an upstream or validation error with type information.
// Source names the collaborator that produced it ("pushshift", "reddit", ...).
type Error struct {
	Type    ErrorType
	Source  string
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	prefix := string(e.Type)
	if e.Source != "" {
		prefix = e.Source + " " + prefix
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", prefix, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(source string, errorType ErrorType, code int, message string) *Error {
	return &Error{Type: errorType, Source: source, Message: message, Code: code}
}

// Wrap creates a typed error around an underlying cause
func Wrap(source string, errorType ErrorType, code int, err error, message string) *Error {
	return &Error{Type: errorType, Source: source, Message: message, Code: code, Err: err}
}

// FromStatus maps a non-2xx HTTP status code to a typed error
func FromStatus(source string, statusCode int) *Error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return New(source, ErrorTypeAuth, statusCode, "authentication required")
	case statusCode == http.StatusNotFound:
		return New(source, ErrorTypeNotFound, statusCode, "resource not found")
	case statusCode == http.StatusTooManyRequests:
		return New(source, ErrorTypeRateLimit, statusCode, "rate limit exceeded")
	case statusCode >= 500:
		return New(source, ErrorTypeServerError, statusCode, "server error")
	default:
		return New(source, ErrorTypeUnknown, statusCode, fmt.Sprintf("unexpected status code: %d", statusCode))
	}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown for untyped errors
func TypeOf(err error) ErrorType {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// IsNotFound reports whether err is a not_found error
func IsNotFound(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeNotFound
}

// IsRateLimited reports whether err is a rate_limit error
func IsRateLimited(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeRateLimit
}

// IsMalformed reports whether err is a parsing error (malformed upstream response)
func IsMalformed(err error) bool {
	return err != nil && TypeOf(err) == ErrorTypeParsing
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case http.StatusTooManyRequests:
		return true
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	default:
		return statusCode >= 500
	}
}
