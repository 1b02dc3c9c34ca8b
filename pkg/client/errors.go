package client

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled while waiting.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrMissingData is returned when a response carries neither errors nor data.
	ErrMissingData = errors.New("response contained no data")
)

// ThrottledCode is the GraphQL error code signalling an exhausted query budget.
const ThrottledCode = "THROTTLED"

// HTTPError is returned for non-2xx responses from the commerce API.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("commerce API HTTP error (status %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("commerce API HTTP error (status %d): %s", e.StatusCode, e.Status)
}

// ErrorExtensions carries the machine readable part of a GraphQL error.
type ErrorExtensions struct {
	Code string `json:"code,omitempty"`
}

// GraphQLError is one entry of a GraphQL response's errors list.
type GraphQLError struct {
	Message    string          `json:"message"`
	Path       []any           `json:"path,omitempty"`
	Extensions ErrorExtensions `json:"extensions"`
}

// Error implements the error interface.
func (e GraphQLError) Error() string {
	if e.Extensions.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Extensions.Code)
	}
	return e.Message
}

// IsThrottled reports whether the server rejected the query for lack of budget.
func (e GraphQLError) IsThrottled() bool {
	return strings.EqualFold(e.Extensions.Code, ThrottledCode)
}

// TerminalError is returned when the API answered with application errors
// that retrying cannot fix.
type TerminalError struct {
	Errors []GraphQLError
	Err    error
}

func newTerminalError(gqlErrors []GraphQLError) *TerminalError {
	var combined error
	for _, e := range gqlErrors {
		combined = multierr.Append(combined, e)
	}
	return &TerminalError{Errors: gqlErrors, Err: combined}
}

// Error implements the error interface.
func (e *TerminalError) Error() string {
	if e.Err == nil {
		return "commerce API error"
	}
	return "commerce API error: " + e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TerminalError) Unwrap() error {
	return e.Err
}

// hasThrottled reports whether any error in the list is a throttling error.
func hasThrottled(gqlErrors []GraphQLError) bool {
	for _, e := range gqlErrors {
		if e.IsThrottled() {
			return true
		}
	}
	return false
}

// shouldRetry determines if an error class is retried at all.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassThrottled, ErrorClassTransient:
		return true
	default:
		return false
	}
}
