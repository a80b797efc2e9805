package session

import (
	"encoding/json"
	"time"
)

// Snapshot is the server's answer to a status poll.
type Snapshot struct {
	// TimeRemaining until expiry. Zero or negative means the session
	// has already expired.
	TimeRemaining time.Duration
	// CanExtend reports whether an extension would currently be granted.
	CanExtend bool
	// ExtensionsUsed counts extensions consumed so far.
	ExtensionsUsed int
	// MaxExtensions is the extension allowance for this session.
	MaxExtensions int
}

// ExtendGrant is the server's answer to a successful extension.
type ExtendGrant struct {
	// TimeRemaining after the extension was applied.
	TimeRemaining time.Duration
	// ExtensionsRemaining counts extensions still available.
	ExtensionsRemaining int
}

// State is what presenters render. It is owned exclusively by the
// TimeoutController; everyone else receives copies.
type State struct {
	TimeRemaining  time.Duration
	Visible        bool
	WarningLevel   WarningLevel
	CanExtend      bool
	ExtensionsUsed int
	MaxExtensions  int
	Expired        bool
}

// stateWire is the JSON shape shared with presenters. Remaining time
// travels as integer milliseconds.
type stateWire struct {
	TimeRemainingMS int64        `json:"time_remaining_ms"`
	Visible         bool         `json:"visible"`
	WarningLevel    WarningLevel `json:"warning_level"`
	CanExtend       bool         `json:"can_extend"`
	ExtensionsUsed  int          `json:"extensions_used"`
	MaxExtensions   int          `json:"max_extensions"`
	Expired         bool         `json:"expired"`
}

// MarshalJSON encodes the state in presenter wire form.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateWire{
		TimeRemainingMS: s.TimeRemaining.Milliseconds(),
		Visible:         s.Visible,
		WarningLevel:    s.WarningLevel,
		CanExtend:       s.CanExtend,
		ExtensionsUsed:  s.ExtensionsUsed,
		MaxExtensions:   s.MaxExtensions,
		Expired:         s.Expired,
	})
}

// UnmarshalJSON decodes the presenter wire form.
func (s *State) UnmarshalJSON(data []byte) error {
	var w stateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = State{
		TimeRemaining:  time.Duration(w.TimeRemainingMS) * time.Millisecond,
		Visible:        w.Visible,
		WarningLevel:   w.WarningLevel,
		CanExtend:      w.CanExtend,
		ExtensionsUsed: w.ExtensionsUsed,
		MaxExtensions:  w.MaxExtensions,
		Expired:        w.Expired,
	}
	return nil
}
