package qhsm

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// HSM is a hierarchical state machine. Every state is nested under Top and
// transitions exit up to the least common ancestor of source and target, then
// enter down to the target.
type HSM struct {
	machine
	slots []*TransitionChain
}

// NewHSM creates a hierarchical machine. setup must return a direct child of
// Top; its Init handler may descend further with InitTo.
func NewHSM(name string, setup SetupFunc, opts ...Option) *HSM {
	o := buildOptions(opts)
	h := &HSM{
		machine: newMachine(name, setup, o),
		slots:   make([]*TransitionChain, o.chainSlots),
	}
	for i := range h.slots {
		h.slots[i] = NewTransitionChain()
	}
	return h
}

// Slot returns the i-th transition chain declared with WithChainSlots.
func (h *HSM) Slot(i int) *TransitionChain {
	if i < 0 || i >= len(h.slots) {
		panic(errors.AssertionFailedf("%s: chain slot %d out of range [0,%d)", h.name, i, len(h.slots)))
	}
	return h.slots[i]
}

// IsInState reports whether s is the current state or one of its ancestors.
// It does not take the dispatch lock.
func (h *HSM) IsInState(s *State) bool {
	for c := h.current.Load(); c != nil; c = c.parent {
		if c == s {
			return true
		}
	}
	return false
}

// Init enters the initial state bound by setup and follows initial
// transitions taken with InitTo until a state declines to descend.
func (h *HSM) Init() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialized {
		return ErrAlreadyInitialized
	}
	err := h.capture(Signal{}, func() {
		h.current.Store(Top)
		s := h.setup()
		if s == nil || s.parent != Top {
			panic(errors.AssertionFailedf("%s: initial state %s is not a direct child of %s", h.name, s.Name(), Top.Name()))
		}
		h.current.Store(s)
		h.source = s
		h.target = s
		s.trigger(entryEvent)
		h.descend(nil)
	})
	if err != nil {
		return err
	}
	h.initialized = true
	return nil
}

// InitTo takes the initial transition from the state being initialized to
// child, which must be one of its direct children. Only Init handlers call it.
func (h *HSM) InitTo(child *State) {
	current := h.current.Load()
	if child == nil || child.parent != current {
		panic(errors.AssertionFailedf("%s: initial transition from %s to %s does not descend exactly one level",
			h.name, current.Name(), child.Name()))
	}
	h.current.Store(child)
}

// descend sends Init to the current state and, while the handler moves the
// machine one level deeper with InitTo, enters the new state and repeats.
func (h *HSM) descend(rec *recorder) {
	for {
		s := h.current.Load()
		s.trigger(initEvent)
		next := h.current.Load()
		if next == s {
			return
		}
		rec.record(s, Init)
		next.trigger(entryEvent)
		rec.record(next, Entry)
	}
}

// TransitionTo moves the machine to target. It must be called from a state
// handler while a dispatch is in flight.
func (h *HSM) TransitionTo(target *State) {
	h.check(target)
	h.exitToSource()
	h.transition(target, nil)
}

func (h *HSM) malformed(format string, args ...any) {
	panic(errors.AssertionFailedf("%s: malformed hierarchy: "+format, append([]any{h.name}, args...)...))
}

func (h *HSM) check(target *State) {
	if target == nil {
		panic(errors.AssertionFailedf("%s: transition to nil state", h.name))
	}
	if target == Top {
		panic(errors.AssertionFailedf("%s: transition to %s", h.name, Top.Name()))
	}
	if target.parent == nil {
		h.malformed("%s has no parent", target)
	}
}

// exitToSource exits from the current state up to the state that took the
// transition. It depends on which substate is active, so it is never cached.
func (h *HSM) exitToSource() {
	for s := h.current.Load(); s != h.source; s = s.parent {
		if s == nil {
			h.malformed("%s is not an ancestor of %s", h.source, h.current.Load())
		}
		s.trigger(exitEvent)
	}
}

// transition runs the part of a transition that depends only on source and
// target: exits up to the least common ancestor, entries down to target and
// the initial descent.
func (h *HSM) transition(target *State, rec *recorder) {
	h.target = target
	exit := func(s *State) {
		s.trigger(exitEvent)
		rec.record(s, Exit)
	}

	src := h.source
	path := []*State{target}
	switch {
	case src == target:
		exit(src)
	case src == target.parent:
	case src.parent == target.parent:
		exit(src)
	case src.parent == target:
		exit(src)
		path = path[:0]
	default:
		path = h.exitToLCA(src, target, path, exit)
	}

	for i := len(path) - 1; i >= 0; i-- {
		path[i].trigger(entryEvent)
		rec.record(path[i], Entry)
	}
	h.current.Store(target)
	h.descend(rec)
	h.logger.Debug("qhsm: transition", "machine", h.name, "from", src, "to", target, "now", h.current.Load())
}

// exitToLCA exits src and its ancestors until one of them is an ancestor of
// target, and returns the states to enter, leaf first.
func (h *HSM) exitToLCA(src, target *State, path []*State, exit func(*State)) []*State {
	for t := target.parent; t != nil; t = t.parent {
		if t == src {
			return path
		}
		path = append(path, t)
	}
	exit(src)
	if i := slices.Index(path, src.parent); i >= 0 {
		return path[:i]
	}
	for s := src.parent; ; {
		if s == nil {
			h.malformed("%s and %s share no ancestor", src, target)
		}
		exit(s)
		s = s.parent
		if s == nil {
			h.malformed("%s and %s share no ancestor", src, target)
		}
		if i := slices.Index(path, s); i >= 0 {
			return path[:i]
		}
	}
}

// TransitionToCached moves the machine to target like TransitionTo. The exits
// from the current state up to the source always run as they would
// dynamically. The first call through chain records every Entry, Exit and
// Init fired from the source onwards; later calls replay the recording
// without resolving the hierarchy again. A chain must only ever be used for
// one source and target pair.
func (h *HSM) TransitionToCached(target *State, chain *TransitionChain) {
	if chain == nil {
		h.TransitionTo(target)
		return
	}
	h.check(target)
	h.exitToSource()
	if chain.recorded.Load() {
		h.replay(chain)
		return
	}
	chain.mu.Lock()
	defer chain.mu.Unlock()
	if chain.recorded.Load() {
		h.replay(chain)
		return
	}
	rec := &recorder{}
	h.transition(target, rec)
	chain.steps = rec.steps
	chain.target = target
	chain.final = h.current.Load()
	chain.recorded.Store(true)
}

func (h *HSM) replay(chain *TransitionChain) {
	h.target = chain.target
	for _, step := range chain.steps {
		if step.Signal == Init {
			h.current.Store(step.State)
		}
		step.State.trigger(pseudoEvent(step.Signal))
	}
	h.current.Store(chain.final)
	h.descend(nil)
}
