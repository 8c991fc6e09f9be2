package items

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// DefaultValidationMessage is shown when a rejection carries no usable message
const DefaultValidationMessage = "An error occurred."

// TransportError represents a network failure or an unexpected HTTP status
type TransportError struct {
	// Op is the client operation that failed (e.g. "list", "delete")
	Op string
	// URL is the request URL
	URL string
	// StatusCode is the HTTP status, or 0 when no response was received
	StatusCode int
	// Message is a short description of the failure
	Message string
	// Err is the underlying error, if any
	Err error
}

// Error returns the error message
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d for URL %s: %s", e.Op, e.StatusCode, e.URL, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: request to %s failed: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: request to %s failed: %s", e.Op, e.URL, e.Message)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewHTTPError creates a transport error for a non-success HTTP status
func NewHTTPError(op string, statusCode int, url, message string) error {
	return &TransportError{
		Op:         op,
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// retryable reports whether a request that failed with this error may be retried
func (e *TransportError) retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}

// CancelledError is returned when the caller's context is done before the
// request completes. It is never a failure of the items API.
type CancelledError struct {
	Op  string
	Err error
}

// Error returns the error message
func (e *CancelledError) Error() string {
	return fmt.Sprintf("%s: request cancelled: %v", e.Op, e.Err)
}

// Unwrap returns the context error
func (e *CancelledError) Unwrap() error {
	return e.Err
}

// ValidationError is a structured rejection of a create or update request
type ValidationError struct {
	// Fields maps a field name to its error messages
	Fields map[string][]string
	// NonField holds errors not tied to a single field, such as a duplicate
	// name within a group
	NonField []string
}

// Error returns the error message
func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message()
}

// Message returns the message to show next to the form: the first non-field
// error, else the first field error, else DefaultValidationMessage.
func (e *ValidationError) Message() string {
	if len(e.NonField) > 0 && e.NonField[0] != "" {
		return e.NonField[0]
	}
	for _, name := range []string{"name", "group"} {
		if msgs := e.Fields[name]; len(msgs) > 0 {
			return fmt.Sprintf("%s: %s", name, msgs[0])
		}
	}
	for name, msgs := range e.Fields {
		if len(msgs) > 0 {
			return fmt.Sprintf("%s: %s", name, msgs[0])
		}
	}
	return DefaultValidationMessage
}

// FieldError returns the first error for the named field, or "" when there is none
func (e *ValidationError) FieldError(name string) string {
	if msgs := e.Fields[name]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// IsCancelled reports whether err is a cancellation rather than a failure
func IsCancelled(err error) bool {
	var cancelled *CancelledError
	if errors.As(err, &cancelled) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// IsNotFound reports whether err is an HTTP 404 from the items API
func IsNotFound(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr) && transportErr.StatusCode == http.StatusNotFound
}

// FormMessage returns the message a form should display for a failed
// create or update
func FormMessage(err error) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message()
	}
	return DefaultValidationMessage
}
