// Package activity implements user-activity detection: typed interaction
// events, a debounced multi-source Detector with per-kind rate limiting,
// and the ports it consumes (event sources) and feeds (journal sinks).
package activity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the interaction that produced an event.
type Kind int

const (
	// KindClick is a pointer button press.
	KindClick Kind = iota
	// KindScroll is a wheel or touch scroll.
	KindScroll
	// KindKeypress is a keyboard key press.
	KindKeypress
	// KindPointerMove is pointer movement without a button press.
	KindPointerMove
	// KindFocus is a window or tab regaining focus.
	KindFocus
)

var kindNames = map[Kind]string{
	KindClick:       "click",
	KindScroll:      "scroll",
	KindKeypress:    "keypress",
	KindPointerMove: "pointer_move",
	KindFocus:       "focus",
}

var kindsByName = make(map[string]Kind, len(kindNames))

func init() {
	for k, name := range kindNames {
		kindsByName[name] = k
	}
}

// Kinds returns all event kinds in their canonical order.
func Kinds() []Kind {
	return []Kind{KindClick, KindScroll, KindKeypress, KindPointerMove, KindFocus}
}

// ParseKind resolves a wire name such as "click" back to its Kind.
func ParseKind(name string) (Kind, error) {
	k, ok := kindsByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown activity kind %q", name)
	}
	return k, nil
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether the kind is one of the defined values.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// MarshalJSON encodes the kind as its wire name.
func (k Kind) MarshalJSON() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("cannot marshal unknown activity kind %d", int(k))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a wire name into the kind.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("activity kind must be a string: %w", err)
	}
	parsed, err := ParseKind(name)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event is a single observed user interaction.
type Event struct {
	// Kind is the interaction type.
	Kind Kind `json:"kind"`
	// At is when the interaction happened. The detector stamps the
	// current time when a source delivers a zero value.
	At time.Time `json:"at"`
	// Source optionally names the adapter or client that observed the
	// event, e.g. "http" or a feed name.
	Source string `json:"source,omitempty"`
	// Meta carries small adapter-specific details, e.g. a client id.
	Meta map[string]any `json:"meta,omitempty"`
}
