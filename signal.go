package qhsm

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/stateforward/qhsm.go/kind"
)

// Signal kinds. Pseudo signals drive the engine itself and are never queued;
// control signals steer the event pump; user signals are everything
// registered by applications.
var (
	SignalKind  = kind.Make("signal")
	PseudoKind  = kind.Make("pseudo", SignalKind)
	ControlKind = kind.Make("control", SignalKind)
	UserKind    = kind.Make("user", SignalKind)
)

// Signal is a named event type. Signals are comparable; two signals are the
// same iff their values are equal. The zero Signal is the absent signal.
type Signal struct {
	value int
	name  string
	kind  kind.Kind
}

// Value returns the signal's numeric identity.
func (s Signal) Value() int { return s.value }

// Name returns the registered name.
func (s Signal) Name() string { return s.name }

// Kind returns the signal's kind.
func (s Signal) Kind() kind.Kind { return s.kind }

// IsZero reports whether s is the absent signal.
func (s Signal) IsZero() bool { return s.value == 0 }

// IsPseudo reports whether s is reserved for the engine.
func (s Signal) IsPseudo() bool { return s.kind.Is(PseudoKind) }

func (s Signal) String() string {
	if s.IsZero() {
		return "<none>"
	}
	return s.name
}

// Reserved signals, registered first in every Registry in this order.
var (
	Empty     = Signal{value: 1, name: "Empty", kind: PseudoKind}
	Init      = Signal{value: 2, name: "Init", kind: PseudoKind}
	Entry     = Signal{value: 3, name: "Entry", kind: PseudoKind}
	Exit      = Signal{value: 4, name: "Exit", kind: PseudoKind}
	StateJob  = Signal{value: 5, name: "StateJob", kind: PseudoKind}
	Terminate = Signal{value: 6, name: "Terminate", kind: ControlKind}
)

var reserved = []Signal{Empty, Init, Entry, Exit, StateJob, Terminate}

// userSignals counts user signals across every Registry so that no two live
// signals share a value.
var userSignals atomic.Int64

// Registry maps signal names to signals. Values are assigned in registration
// order from a process-wide sequence and never reused, including across
// registries.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Signal
	all    []Signal
}

// NewRegistry returns a registry holding only the reserved signals.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Signal, 32)}
	for _, s := range reserved {
		r.byName[s.name] = s
		r.all = append(r.all, s)
	}
	return r
}

// Register adds a user signal. Names are case-sensitive.
func (r *Registry) Register(name string) (Signal, error) {
	if name == "" {
		return Signal{}, ErrInvalidSignalName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return Signal{}, errors.Wrapf(ErrDuplicateSignal, "%q", name)
	}
	s := Signal{value: Terminate.value + int(userSignals.Add(1)), name: name, kind: UserKind}
	r.byName[name] = s
	r.all = append(r.all, s)
	return s, nil
}

// MustRegister is Register for package initialization; it panics on error.
func (r *Registry) MustRegister(name string) Signal {
	s, err := r.Register(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup returns the signal registered under name.
func (r *Registry) Lookup(name string) (Signal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// Exists reports whether name is registered.
func (r *Registry) Exists(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Signals returns a snapshot of every signal in registration order.
func (r *Registry) Signals() []Signal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.all)
}

// Names returns a snapshot of every registered name in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.all))
	for i, s := range r.all {
		names[i] = s.name
	}
	return names
}

// Signals is the process-wide registry.
var Signals = NewRegistry()

// Register adds name to the process-wide registry.
func Register(name string) (Signal, error) {
	return Signals.Register(name)
}

// MustRegister adds name to the process-wide registry and panics on error.
func MustRegister(name string) Signal {
	return Signals.MustRegister(name)
}

// Lookup finds name in the process-wide registry.
func Lookup(name string) (Signal, bool) {
	return Signals.Lookup(name)
}
