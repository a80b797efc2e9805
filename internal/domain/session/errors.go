package session

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned by operations that need an
// authenticated session when there is none.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// TransportError wraps a connectivity failure talking to the status
// source: refused connections, DNS failures, timeouts.
type TransportError struct {
	// Op names the operation that failed, e.g. "get status".
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// APIError reports a non-2xx response from the status source.
type APIError struct {
	// Op names the operation that failed.
	Op string
	// StatusCode is the HTTP status returned.
	StatusCode int
	// Message is the server's error message when one was provided.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsClientError reports whether the status is in the 4xx range, meaning
// the request was understood and refused rather than failing.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
