package qhsm

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Sentinel errors. Definitional faults (malformed hierarchies, transitions to
// Top, initial transitions that skip levels) are not listed here: they are
// assertion failures, detectable with errors.HasAssertionFailure.
var (
	// ErrDuplicateSignal is returned when a signal name is registered twice.
	ErrDuplicateSignal = errors.New("signal already registered")
	// ErrInvalidSignalName is returned for an empty signal name.
	ErrInvalidSignalName = errors.New("invalid signal name")
	// ErrInvalidEvent is returned when an event carries no signal.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrReservedSignal is returned when a pseudo signal is posted, published or subscribed to.
	ErrReservedSignal = errors.New("reserved signal")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("machine already initialized")
	// ErrNotInitialized is returned by Dispatch before Init.
	ErrNotInitialized = errors.New("machine not initialized")
	// ErrAlreadyStarted is returned by a second Run or Start of an active object.
	ErrAlreadyStarted = errors.New("active object already started")
	// ErrNotStarted is returned when a subscriber without a priority is subscribed.
	ErrNotStarted = errors.New("active object not started")
	// ErrNegativePriority is returned when an active object is started with a negative priority.
	ErrNegativePriority = errors.New("negative priority")
	// ErrInvalidDuration is returned by timers for a non-positive delay or period.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrNotArmed is returned by Rearm when the timer holds no event.
	ErrNotArmed = errors.New("timer not armed")
	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// DispatchError wraps a fault raised by a state handler while an event was
// being dispatched or while the machine was being initialized.
type DispatchError struct {
	// Machine is the name of the machine that owns the handler.
	Machine string
	// Signal is the signal being dispatched, the zero Signal during Init.
	Signal Signal
	// Target is the target of the most recent transition, if any.
	Target string
	// Err is the captured fault.
	Err error
}

func (e *DispatchError) Error() string {
	target := e.Target
	if target == "" {
		target = "none"
	}
	if e.Signal.IsZero() {
		return fmt.Sprintf("%s: init failed (last target %s): %s", e.Machine, target, causeChain(e.Err))
	}
	return fmt.Sprintf("%s: dispatch of %s failed (last target %s): %s", e.Machine, e.Signal, target, causeChain(e.Err))
}

// Unwrap returns the captured fault.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// causeChain renders every distinct message along the wrap chain. Messages
// already contained in their wrapper's message are skipped.
func causeChain(err error) string {
	if err == nil {
		return "<nil>"
	}
	chain := err.Error()
	for cause := errors.UnwrapOnce(err); cause != nil; cause = errors.UnwrapOnce(cause) {
		msg := cause.Error()
		if msg == "" || strings.Contains(chain, msg) {
			continue
		}
		chain += " <- " + msg
	}
	return chain
}

// panicError converts a recovered value into an error. Both constructors
// capture the stack of the recovering goroutine.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		if errors.HasAssertionFailure(err) {
			return err
		}
		return errors.Wrap(err, "handler panicked")
	}
	return errors.Newf("handler panicked: %v", r)
}
