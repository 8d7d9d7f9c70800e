package qhsm

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Machine is what an active object drives: something that is initialized
// once and then fed events one at a time.
type Machine interface {
	Name() string
	Init() error
	Dispatch(e Event) error
}

// SetupFunc binds the initial state of a machine. It runs once, inside Init.
type SetupFunc func() *State

// machine holds what flat and hierarchical machines share: the state
// pointers, the dispatch lock and fault capture.
//
// current and source change only while mu is held, which Init and Dispatch
// take. TransitionTo and InitTo run inside handlers and rely on the lock
// already being held.
type machine struct {
	name   string
	setup  SetupFunc
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	current     atomic.Pointer[State]
	source      *State
	// target is the most recent transition target, reported in faults.
	target *State
}

func newMachine(name string, setup SetupFunc, o options) machine {
	return machine{
		name:   name,
		setup:  setup,
		logger: loggerOr(o.logger),
	}
}

// Name returns the machine's name.
func (m *machine) Name() string {
	return m.name
}

// State returns the current state, nil before Init. It may be called from any
// goroutine.
func (m *machine) State() *State {
	return m.current.Load()
}

// Dispatch hands e to the current state's handler exactly once. A handler
// that does not handle e returns DelegateTo; the engine records the result
// but does not walk up the hierarchy on its own (see Delegate).
//
// Handlers must not call Dispatch on their own machine; they post instead.
func (m *machine) Dispatch(e Event) error {
	if e.IsZero() {
		return ErrInvalidEvent
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return ErrNotInitialized
	}
	return m.capture(e.signal, func() {
		s := m.current.Load()
		m.source = s
		r := s.trigger(e)
		m.logger.Debug("qhsm: dispatched",
			"machine", m.name,
			"signal", e.signal,
			"state", s,
			"handled", r.IsHandled(),
			"delegated_to", r.Next())
	})
}

// Delegate passes e on to s, typically the caller's parent, and returns s's
// result. It is the explicit form of bubbling: a handler that wants its
// ancestors to see an event ends with `return m.Delegate(e, parent)`.
// Delegate also moves the transition source to s, so a transition taken by s
// exits the states below it first.
func (m *machine) Delegate(e Event, s *State) Result {
	if s == nil {
		return Handled()
	}
	m.source = s
	return s.trigger(e)
}

// capture runs fn and turns a panic into a *DispatchError.
func (m *machine) capture(sig Signal, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DispatchError{
				Machine: m.name,
				Signal:  sig,
				Target:  m.target.Name(),
				Err:     panicError(r),
			}
		}
	}()
	fn()
	return nil
}
