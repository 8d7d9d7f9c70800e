package qhsm

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/logtags"

	"github.com/stateforward/qhsm.go/muid"
)

// Active binds a machine to a private event queue and a pump goroutine that
// dispatches queued events to it one at a time.
type Active struct {
	id           string
	name         string
	machine      Machine
	queue        *Queue
	logger       *slog.Logger
	onUnhandled  func(*Active, Event, error)
	onTerminated func(*Active)

	started  atomic.Bool
	priority atomic.Int64

	stopped   context.Context
	stop      context.CancelFunc
	done      chan struct{}
	terminate sync.Once
}

// NewActive wraps m. The active object is inert until Run or Start.
func NewActive(m Machine, opts ...Option) *Active {
	o := buildOptions(opts)
	name := o.name
	if name == "" {
		name = m.Name()
	}
	a := &Active{
		id:           name + "_" + muid.MakeString(),
		name:         name,
		machine:      m,
		queue:        NewQueue(),
		logger:       loggerOr(o.logger),
		onUnhandled:  o.onUnhandled,
		onTerminated: o.onTerminated,
		done:         make(chan struct{}),
	}
	a.priority.Store(-1)
	a.stopped, a.stop = context.WithCancel(context.Background())
	return a
}

// ID returns the unique identity of the active object.
func (a *Active) ID() string { return a.id }

// Name returns the active object's name.
func (a *Active) Name() string { return a.name }

// Machine returns the wrapped machine.
func (a *Active) Machine() Machine { return a.machine }

// Priority returns the priority given at start, -1 before.
func (a *Active) Priority() int { return int(a.priority.Load()) }

// Started reports whether Run or Start has been called successfully.
func (a *Active) Started() bool { return a.started.Load() }

// Len returns the number of queued events.
func (a *Active) Len() int { return a.queue.Len() }

// Done is closed once the pump has terminated.
func (a *Active) Done() <-chan struct{} { return a.done }

// Stop cancels the pump. The event being dispatched, if any, completes first.
func (a *Active) Stop() { a.stop() }

// PostFifo queues e behind every queued event. It is safe to call from any
// goroutine, including the active object's own handlers.
func (a *Active) PostFifo(e Event) error {
	if err := validatePost(e); err != nil {
		return err
	}
	a.queue.EnqueueFifo(e)
	return nil
}

// PostLifo queues e ahead of every queued event.
func (a *Active) PostLifo(e Event) error {
	if err := validatePost(e); err != nil {
		return err
	}
	a.queue.EnqueueLifo(e)
	return nil
}

// Run starts the pump on the calling goroutine and returns once it has
// terminated, either because a Terminate event was dequeued or because ctx was
// cancelled or Stop called. Termination is not an error.
func (a *Active) Run(ctx context.Context, priority int) error {
	ctx, cancel, err := a.start(ctx, priority)
	if err != nil {
		return err
	}
	defer cancel()
	a.pump(ctx)
	return nil
}

// Start is Run on a new goroutine. Errors are reported synchronously.
func (a *Active) Start(ctx context.Context, priority int) error {
	ctx, cancel, err := a.start(ctx, priority)
	if err != nil {
		return err
	}
	go func() {
		defer cancel()
		a.pump(ctx)
	}()
	return nil
}

func (a *Active) start(ctx context.Context, priority int) (context.Context, context.CancelFunc, error) {
	if priority < 0 {
		return nil, nil, ErrNegativePriority
	}
	if !a.started.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadyStarted
	}
	a.priority.Store(int64(priority))
	ctx, cancel := context.WithCancel(ctx)
	release := context.AfterFunc(a.stopped, cancel)
	ctx = logtags.AddTag(ctx, "ao", a.name)
	return ctx, func() {
		release()
		cancel()
	}, nil
}

func (a *Active) pump(ctx context.Context) {
	defer a.terminated(ctx)
	a.logger.Debug("qhsm: pump started", withTags(ctx, "id", a.id, "priority", a.Priority())...)
	if err := a.machine.Init(); err != nil {
		a.unhandled(ctx, empty, err)
		return
	}
	for {
		e, ok := a.queue.DeQueue(ctx)
		if !ok {
			return
		}
		if e.signal == Terminate {
			return
		}
		if err := a.machine.Dispatch(e); err != nil {
			a.unhandled(ctx, e, err)
		}
	}
}

func (a *Active) unhandled(ctx context.Context, e Event, err error) {
	if a.onUnhandled != nil {
		a.onUnhandled(a, e, err)
		return
	}
	a.logger.Error("qhsm: unhandled error", withTags(ctx, "id", a.id, "signal", e.signal, "error", err)...)
}

func (a *Active) terminated(ctx context.Context) {
	a.terminate.Do(func() {
		a.logger.Debug("qhsm: pump terminated", withTags(ctx, "id", a.id, "queued", a.queue.Len())...)
		if a.onTerminated != nil {
			a.onTerminated(a)
		}
		close(a.done)
	})
}
