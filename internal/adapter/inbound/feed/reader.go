// Package feed pumps newline-delimited activity events from a byte
// stream onto the event bus. The start command mounts it on stdin when
// --feed-stdin is set; tests and tooling point it at any reader.
package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Session-Vigil/Sessionvigil/internal/adapter/outbound/memory"
	"github.com/Session-Vigil/Sessionvigil/pkg/eventwire"
)

// DefaultSource is stamped on frames that do not name their producer.
const DefaultSource = "feed"

// Reader consumes one wire stream and publishes its events.
type Reader struct {
	bus    *memory.Bus
	src    io.Reader
	logger *slog.Logger

	published atomic.Uint64
	malformed atomic.Uint64
}

// NewReader creates a Reader publishing to bus. A nil logger falls back
// to slog.Default.
func NewReader(bus *memory.Bus, src io.Reader, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{bus: bus, src: src, logger: logger}
}

// Run consumes the stream until it ends. Malformed frames are counted
// and skipped; events missing a timestamp or source are stamped on
// arrival. Run returns nil on EOF, the read error on a broken stream,
// and ctx.Err after cancellation. Cancellation is observed between
// frames; a read blocked on a quiet stream holds until the next line or
// stream close.
func (r *Reader) Run(ctx context.Context) error {
	dec := eventwire.NewDecoder(r.src)
	r.logger.Info("event feed started")

	for {
		if err := ctx.Err(); err != nil {
			r.logStop()
			return err
		}

		ev, err := dec.Next()
		if err != nil {
			var frameErr *eventwire.FrameError
			if errors.As(err, &frameErr) {
				r.malformed.Add(1)
				r.logger.Debug("skipping malformed feed frame", "error", err)
				continue
			}
			r.logStop()
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if ev.At.IsZero() {
			ev.At = time.Now().UTC()
		}
		if ev.Source == "" {
			ev.Source = DefaultSource
		}
		r.bus.Publish(ev)
		r.published.Add(1)
	}
}

func (r *Reader) logStop() {
	r.logger.Info("event feed closed",
		"published", r.published.Load(),
		"malformed", r.malformed.Load())
}

// Published returns the number of events put on the bus.
func (r *Reader) Published() uint64 { return r.published.Load() }

// Malformed returns the number of skipped undecodable frames.
func (r *Reader) Malformed() uint64 { return r.malformed.Load() }
