package qhsm

import "github.com/cockroachdb/errors"

// FSM is a flat state machine. States are unrelated; transitions exit the
// current state and enter the target without any hierarchy resolution.
type FSM struct {
	machine
	stateJob bool
}

// NewFSM creates a flat machine whose initial state is bound by setup.
func NewFSM(name string, setup SetupFunc, opts ...Option) *FSM {
	o := buildOptions(opts)
	return &FSM{
		machine:  newMachine(name, setup, o),
		stateJob: o.stateJob,
	}
}

// Init binds the initial state and sends it Entry then Init.
func (f *FSM) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initialized {
		return ErrAlreadyInitialized
	}
	err := f.capture(Signal{}, func() {
		s := f.setup()
		if s == nil {
			panic(errors.AssertionFailedf("%s: setup bound no state", f.name))
		}
		f.current.Store(s)
		f.source = s
		f.target = s
		s.trigger(entryEvent)
		s.trigger(initEvent)
	})
	if err != nil {
		return err
	}
	f.initialized = true
	return nil
}

// TransitionTo moves the machine to target. It must be called from a state
// handler.
func (f *FSM) TransitionTo(target *State) {
	if target == nil {
		panic(errors.AssertionFailedf("%s: transition to nil state", f.name))
	}
	current := f.current.Load()
	if current != nil {
		current.trigger(exitEvent)
	}
	f.source = current
	f.current.Store(target)
	f.target = target
	target.trigger(entryEvent)
	target.trigger(initEvent)
	if f.stateJob {
		target.trigger(stateJobEvent)
	}
	f.logger.Debug("qhsm: transition", "machine", f.name, "from", current, "to", target)
}
