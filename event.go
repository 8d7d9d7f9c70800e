package qhsm

import "github.com/cockroachdb/errors"

// Event is an immutable signal with an optional payload.
type Event struct {
	signal  Signal
	payload any
}

// NewEvent builds an event. It panics when sig is the absent signal.
func NewEvent(sig Signal, payload ...any) Event {
	if sig.IsZero() {
		panic(errors.AssertionFailedf("event without a signal"))
	}
	e := Event{signal: sig}
	if len(payload) > 0 {
		e.payload = payload[0]
	}
	return e
}

// Signal returns the event's signal.
func (e Event) Signal() Signal { return e.signal }

// Payload returns the event's payload, nil when none was given.
func (e Event) Payload() any { return e.payload }

// IsZero reports whether e is the zero Event.
func (e Event) IsZero() bool { return e.signal.IsZero() }

// Equal reports whether e and other carry the same signal. Payloads are not
// compared.
func (e Event) Equal(other Event) bool {
	return e.signal.value == other.signal.value
}

func (e Event) String() string {
	return e.signal.String()
}

// Prebuilt pseudo events handed to state handlers by the engine.
var (
	initEvent     = Event{signal: Init}
	entryEvent    = Event{signal: Entry}
	exitEvent     = Event{signal: Exit}
	stateJobEvent = Event{signal: StateJob}
)

// validatePost checks an event that is about to be queued.
func validatePost(e Event) error {
	if e.IsZero() {
		return ErrInvalidEvent
	}
	if e.signal.IsPseudo() {
		return errors.Wrapf(ErrReservedSignal, "%s", e.signal)
	}
	return nil
}
