package qhsm

import (
	"sync"
	"sync/atomic"
)

// Step is one recorded notification of a transition chain.
type Step struct {
	State  *State
	Signal Signal
}

// TransitionChain caches the Entry, Exit and Init notifications of one
// transition so that it can be replayed without walking the hierarchy. It is
// filled on first use and immutable afterwards.
type TransitionChain struct {
	mu       sync.Mutex
	recorded atomic.Bool
	steps    []Step
	target   *State
	final    *State
}

// NewTransitionChain returns an empty chain.
func NewTransitionChain() *TransitionChain {
	return &TransitionChain{}
}

// Recorded reports whether the chain has been filled.
func (c *TransitionChain) Recorded() bool {
	return c.recorded.Load()
}

// Steps returns a copy of the recorded steps, nil before recording.
func (c *TransitionChain) Steps() []Step {
	if !c.recorded.Load() {
		return nil
	}
	steps := make([]Step, len(c.steps))
	copy(steps, c.steps)
	return steps
}

// Target returns the state the machine settles in after the chain runs,
// which is the requested target deepened by its initial transitions.
func (c *TransitionChain) Target() *State {
	if !c.recorded.Load() {
		return nil
	}
	return c.final
}

type recorder struct {
	steps []Step
}

func (r *recorder) record(s *State, sig Signal) {
	if r == nil {
		return
	}
	r.steps = append(r.steps, Step{State: s, Signal: sig})
}

func pseudoEvent(sig Signal) Event {
	switch sig {
	case Entry:
		return entryEvent
	case Exit:
		return exitEvent
	case Init:
		return initEvent
	}
	return Event{signal: sig}
}
