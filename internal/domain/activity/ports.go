package activity

import "context"

// EventSource delivers raw interaction events. Implementations dispatch
// each event to every subscriber of its kind; delivery order within one
// subscriber follows publish order.
type EventSource interface {
	// Subscribe registers fn for events of the given kind and returns a
	// handle that detaches it. fn runs on the source's dispatch
	// goroutine and must not block.
	Subscribe(kind Kind, fn func(Event)) (Subscription, error)
}

// Subscription is a live registration on an EventSource.
type Subscription interface {
	// Cancel detaches the subscriber. Idempotent. After Cancel returns
	// no further events are delivered.
	Cancel()
}

// ActivitySink persists batches of observed events. Writes are
// best-effort; callers log failures and move on without retrying.
type ActivitySink interface {
	WriteBatch(ctx context.Context, events []Event) error
	Close() error
}

// ActivityReader serves recently journaled events, newest first.
type ActivityReader interface {
	Recent(n int) []Event
}

// EventFilter admits or rejects raw events before the detector does any
// bookkeeping. An Admit error fails open: the event is admitted.
type EventFilter interface {
	Admit(Event) (bool, error)
}
