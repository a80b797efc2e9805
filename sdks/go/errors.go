package sessionvigil

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrDenied is returned when the sidecar understood the request and
	// refused it, such as an extension with no allowance remaining.
	ErrDenied = errors.New("request denied")

	// ErrRateLimited is returned when the sidecar's event ingest limit
	// was exceeded. The APIError carries the retry-after hint.
	ErrRateLimited = errors.New("rate limited")
)

// APIError is returned when the sidecar responds with a non-2xx status.
// It distinguishes a refusal (the sidecar or its upstream understood and
// said no) from transport failures, which are returned as plain wrapped
// errors.
type APIError struct {
	// StatusCode is the HTTP status returned by the sidecar.
	StatusCode int

	// Message is the error message from the response body, if any.
	Message string

	// RetryAfter is the wait the sidecar suggested on a 429 response.
	// Zero when the response carried no Retry-After header.
	RetryAfter time.Duration
}

// Error returns a human-readable description of the API error.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("sessionvigil: server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("sessionvigil: server returned %d", e.StatusCode)
}

// IsClientError reports whether the status is in the 4xx range, meaning
// the request was understood and refused rather than failing in transit.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrDenied) and errors.Is(err, ErrRateLimited).
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrDenied:
		return e.StatusCode == 409
	case ErrRateLimited:
		return e.StatusCode == 429
	}
	return false
}
