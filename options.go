package qhsm

import "log/slog"

// Option configures machines, active objects, brokers and groups. Each
// constructor reads the options that concern it and ignores the rest.
type Option func(*options)

type options struct {
	name         string
	logger       *slog.Logger
	stateJob     bool
	chainSlots   int
	onUnhandled  func(*Active, Event, error)
	onTerminated func(*Active)
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithName overrides the name of an active object, which defaults to the
// name of its machine.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStateJob makes flat machines send StateJob to the target of every
// transition, after Entry and Init.
func WithStateJob(enabled bool) Option {
	return func(o *options) {
		o.stateJob = enabled
	}
}

// WithChainSlots declares how many transition chains a hierarchical machine
// caches. Slots are addressed by index through Slot.
func WithChainSlots(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chainSlots = n
		}
	}
}

// WithUnhandledError sets the callback an active object invokes when a
// dispatch fails. The pump keeps running afterwards.
func WithUnhandledError(fn func(a *Active, e Event, err error)) Option {
	return func(o *options) {
		o.onUnhandled = fn
	}
}

// WithTerminated sets the callback an active object invokes once its pump
// has stopped.
func WithTerminated(fn func(a *Active)) Option {
	return func(o *options) {
		o.onTerminated = fn
	}
}
