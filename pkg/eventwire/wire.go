// Package eventwire implements the newline-delimited JSON wire format
// for activity events, shared by the stdin feed and stream tooling.
package eventwire

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/activity"
)

const (
	// initialBufferSize is the scanner's starting buffer.
	initialBufferSize = 64 * 1024
	// MaxFrameSize caps a single wire frame. Frames are small; anything
	// bigger is a producer bug or garbage on the pipe.
	MaxFrameSize = 1024 * 1024
)

// ErrMissingKind reports a frame without a kind field.
var ErrMissingKind = errors.New("eventwire: frame has no kind")

// FrameError reports one undecodable frame on a stream. The stream
// itself is still readable; callers skip the frame and keep going.
// Errors from Next that are not FrameErrors end the stream.
type FrameError struct {
	Err error
}

func (e *FrameError) Error() string { return "eventwire: bad frame: " + e.Err.Error() }

func (e *FrameError) Unwrap() error { return e.Err }

// frame is the wire shape of one event. Kind is a pointer so a missing
// field is distinguishable from the zero kind.
type frame struct {
	Kind   *activity.Kind `json:"kind"`
	At     time.Time      `json:"at,omitempty"`
	Source string         `json:"source,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Encode serializes one event as a JSON frame without the trailing
// newline.
func Encode(ev activity.Event) ([]byte, error) {
	kind := ev.Kind
	return json.Marshal(frame{
		Kind:   &kind,
		At:     ev.At,
		Source: ev.Source,
		Meta:   ev.Meta,
	})
}

// Decode parses one JSON frame. Unknown kinds and frames without a kind
// are rejected; a missing timestamp decodes as zero for the consumer to
// stamp.
func Decode(data []byte) (activity.Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return activity.Event{}, fmt.Errorf("eventwire: decode frame: %w", err)
	}
	if f.Kind == nil {
		return activity.Event{}, ErrMissingKind
	}
	return activity.Event{
		Kind:   *f.Kind,
		At:     f.At,
		Source: f.Source,
		Meta:   f.Meta,
	}, nil
}

// Encoder writes newline-delimited frames to a stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one event as a frame followed by a newline.
func (e *Encoder) Encode(ev activity.Event) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("eventwire: write frame: %w", err)
	}
	if _, err := e.w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("eventwire: write frame: %w", err)
	}
	return nil
}

// Decoder reads newline-delimited frames from a stream. Blank lines are
// skipped; a malformed frame returns an error but leaves the decoder
// usable, so callers can log and continue.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a Decoder reading from r with the standard frame
// size limits.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialBufferSize), MaxFrameSize)
	return &Decoder{scanner: scanner}
}

// Next returns the next event on the stream. io.EOF signals a clean end
// of input; a *FrameError marks one bad frame with more possibly behind
// it.
func (d *Decoder) Next() (activity.Event, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := Decode(line)
		if err != nil {
			return activity.Event{}, &FrameError{Err: err}
		}
		return ev, nil
	}
	if err := d.scanner.Err(); err != nil {
		return activity.Event{}, fmt.Errorf("eventwire: read frame: %w", err)
	}
	return activity.Event{}, io.EOF
}
