package session

import "context"

// StatusSource is the authority on session lifetime. The production
// implementation talks to the auth backend over HTTP; dev mode uses a
// deterministic in-memory simulation.
type StatusSource interface {
	// GetStatus returns the current session snapshot. Failures are a
	// *TransportError or *APIError.
	GetStatus(ctx context.Context) (Snapshot, error)
	// Extend asks for more session time. Refusals surface as a 4xx
	// *APIError.
	Extend(ctx context.Context) (ExtendGrant, error)
	// ReportActivity tells the source the user is still there.
	// Best-effort; callers log failures and carry on.
	ReportActivity(ctx context.Context) error
}

// Redirector sends presenters away once the session has expired. The
// production implementation broadcasts over WebSocket.
type Redirector interface {
	Redirect(ctx context.Context, reason string) error
}
