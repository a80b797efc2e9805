package session

import (
	"encoding/json"
	"fmt"
)

// WarningLevel is the urgency of an expiry warning, ordered by severity.
type WarningLevel int

const (
	// LevelNone means no warning is due.
	LevelNone WarningLevel = iota
	// LevelSubtle is an early, low-key hint.
	LevelSubtle
	// LevelProminent is a clearly visible warning.
	LevelProminent
	// LevelCritical is the last-chance warning before expiry.
	LevelCritical
)

var levelNames = map[WarningLevel]string{
	LevelNone:      "none",
	LevelSubtle:    "subtle",
	LevelProminent: "prominent",
	LevelCritical:  "critical",
}

var levelsByName = make(map[string]WarningLevel, len(levelNames))

func init() {
	for l, name := range levelNames {
		levelsByName[name] = l
	}
}

// ParseWarningLevel resolves a wire name such as "prominent".
func ParseWarningLevel(name string) (WarningLevel, error) {
	l, ok := levelsByName[name]
	if !ok {
		return 0, fmt.Errorf("unknown warning level %q", name)
	}
	return l, nil
}

// String returns the wire name of the level.
func (l WarningLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// MarshalJSON encodes the level as its wire name.
func (l WarningLevel) MarshalJSON() ([]byte, error) {
	name, ok := levelNames[l]
	if !ok {
		return nil, fmt.Errorf("cannot marshal unknown warning level %d", int(l))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a wire name into the level.
func (l *WarningLevel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("warning level must be a string: %w", err)
	}
	parsed, err := ParseWarningLevel(name)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
