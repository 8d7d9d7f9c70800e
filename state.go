package qhsm

import (
	"github.com/stateforward/qhsm.go/elements"
	"github.com/stateforward/qhsm.go/kind"
)

// State kinds.
var (
	StateKind = kind.Make("state")
	TopKind   = kind.Make("top", StateKind)
)

// Handler reacts to one event on behalf of a state.
type Handler func(e Event) Result

// Result is what a handler reports back to the engine: either the event was
// handled, or the handler delegates it to another state, normally its parent.
type Result struct {
	next *State
}

// Handled reports that the handler consumed the event.
func Handled() Result { return Result{} }

// DelegateTo reports that the event was not handled and belongs to s.
func DelegateTo(s *State) Result { return Result{next: s} }

// IsHandled reports whether the event was consumed.
func (r Result) IsHandled() bool { return r.next == nil }

// Next returns the state the event was delegated to, nil when handled.
func (r Result) Next() *State { return r.next }

// State is a node of a state hierarchy: a name, a parent and a handler.
// States are immutable once created and may be shared by any number of
// machines whose handlers do not capture per-instance data.
type State struct {
	name    string
	parent  *State
	handler Handler
}

// NewState creates a state under parent. A nil parent makes a detached root,
// which is what flat machines use; hierarchical machines require every state
// to descend from Top. A nil handler delegates everything to the parent.
func NewState(name string, parent *State, handler Handler) *State {
	s := &State{name: name, parent: parent, handler: handler}
	if s.handler == nil {
		s.handler = func(Event) Result { return DelegateTo(s.parent) }
	}
	return s
}

// Top is the root of every hierarchy. It handles, and ignores, every event.
var Top = &State{
	name:    "top",
	handler: func(Event) Result { return Handled() },
}

// Name returns the state's name.
func (s *State) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Parent returns the enclosing state, nil for Top and detached roots.
func (s *State) Parent() *State { return s.parent }

// Kind implements elements.Element.
func (s *State) Kind() kind.Kind {
	if s == Top {
		return TopKind
	}
	return StateKind
}

// Owner implements elements.Vertex.
func (s *State) Owner() elements.Vertex {
	if s.parent == nil {
		return nil
	}
	return s.parent
}

// Depth returns the number of ancestors of s.
func (s *State) Depth() int {
	depth := 0
	for p := s.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// IsChildOf reports whether s is strictly nested inside ancestor.
func (s *State) IsChildOf(ancestor *State) bool {
	for p := s.parent; p != nil; p = p.parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func (s *State) String() string {
	return s.Name()
}

func (s *State) trigger(e Event) Result {
	return s.handler(e)
}
