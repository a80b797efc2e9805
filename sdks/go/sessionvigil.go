// Package sessionvigil provides a Go SDK for the Session Vigil sidecar API.
//
// Session Vigil is a session-liveness sidecar: it watches an upstream
// session, classifies the remaining time into warning tiers, and keeps the
// session alive while the user is active. This SDK lets Go presenters read
// session state, request extensions, report activity, and publish raw
// interaction events over the sidecar's HTTP API. It uses only the Go
// standard library (net/http) with zero external dependencies.
//
// Quick start:
//
//	// Set SESSION_VIGIL_SERVER_ADDR and SESSION_VIGIL_API_KEY env vars, then:
//	client := sessionvigil.NewClient()
//
//	st, err := client.GetState(ctx)
//	if err != nil {
//	    return err
//	}
//	if st.ShouldRender() {
//	    fmt.Printf("session expires in %s (%s)\n",
//	        sessionvigil.FormatRemaining(st.Remaining()), st.WarningLevel)
//	}
//
//	if _, err := client.Extend(ctx); errors.Is(err, sessionvigil.ErrDenied) {
//	    // No extensions left, or the upstream refused. Render the state
//	    // as-is; the sidecar redirects on expiry.
//	}
package sessionvigil

import "time"

// WarningLevel is the urgency of an expiry warning as reported by the
// sidecar, ordered none < subtle < prominent < critical.
type WarningLevel string

const (
	// LevelNone means no warning is due.
	LevelNone WarningLevel = "none"

	// LevelSubtle is an early, low-key hint.
	LevelSubtle WarningLevel = "subtle"

	// LevelProminent is a clearly visible warning.
	LevelProminent WarningLevel = "prominent"

	// LevelCritical is the last-chance warning before expiry.
	LevelCritical WarningLevel = "critical"
)

// Severity ranks the level for comparisons: none is 0, critical is 3.
// Unknown levels rank alongside none.
func (l WarningLevel) Severity() int {
	switch l {
	case LevelSubtle:
		return 1
	case LevelProminent:
		return 2
	case LevelCritical:
		return 3
	default:
		return 0
	}
}

// Event kind names accepted by the sidecar's event ingest endpoint.
const (
	// KindClick is a pointer button press.
	KindClick = "click"

	// KindScroll is a wheel or touch scroll.
	KindScroll = "scroll"

	// KindKeypress is a keyboard key press.
	KindKeypress = "keypress"

	// KindPointerMove is pointer movement without a button press.
	KindPointerMove = "pointer_move"

	// KindFocus is a window or tab regaining focus.
	KindFocus = "focus"
)

// State is the presenter-facing session state returned by the sidecar.
// Fields map to the GET /api/v1/session response.
type State struct {
	// TimeRemainingMS is the time until session expiry in milliseconds.
	TimeRemainingMS int64 `json:"time_remaining_ms"`

	// Visible reports whether a warning should currently be shown.
	Visible bool `json:"visible"`

	// WarningLevel is the urgency of the current warning.
	WarningLevel WarningLevel `json:"warning_level"`

	// CanExtend reports whether an extension would currently be granted.
	CanExtend bool `json:"can_extend"`

	// ExtensionsUsed counts extensions consumed so far.
	ExtensionsUsed int `json:"extensions_used"`

	// MaxExtensions is the extension allowance for this session.
	MaxExtensions int `json:"max_extensions"`

	// Expired reports whether the session has already expired.
	Expired bool `json:"expired"`
}

// Remaining returns the time until expiry as a duration.
func (s State) Remaining() time.Duration {
	return time.Duration(s.TimeRemainingMS) * time.Millisecond
}

// ShouldRender reports whether a presenter should draw the warning at
// all. A warning is never rendered when the sidecar marks it invisible
// or when no time remains; on expiry the sidecar's redirect takes over.
func (s State) ShouldRender() bool {
	return s.Visible && s.TimeRemainingMS > 0
}

// Event is a single user interaction published to the sidecar.
// Fields map to the POST /api/v1/events request schema.
type Event struct {
	// Kind is the interaction type; one of the Kind* constants.
	Kind string `json:"kind"`

	// At is when the interaction happened. PublishEvents stamps the
	// current time when left zero.
	At time.Time `json:"at,omitempty"`

	// Source names the client that observed the event. PublishEvents
	// fills the client's configured source when left empty.
	Source string `json:"source,omitempty"`

	// Meta carries small client-specific details as key-value pairs.
	Meta map[string]any `json:"meta,omitempty"`
}

// IngestResult reports how many published events the sidecar accepted.
type IngestResult struct {
	// Accepted is the number of events published to the activity bus.
	Accepted int `json:"accepted"`

	// Rejected is the number of events dropped as undecodable.
	Rejected int `json:"rejected"`
}

// AckResponse is the acknowledgement returned by fire-and-forget
// endpoints such as POST /api/v1/session/activity.
type AckResponse struct {
	// Status is "accepted" when the request was taken.
	Status string `json:"status"`
}
