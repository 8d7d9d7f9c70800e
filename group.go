package qhsm

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// Group runs several active objects under one context. Priorities come from a
// Config, by active object name; without a Config an active object's priority
// is its position in the group.
type Group struct {
	actives []*Active
	config  *Config
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewGroup creates a group. It panics if one of the active objects has
// already been started.
func NewGroup(config *Config, actives []*Active, opts ...Option) *Group {
	o := buildOptions(opts)
	group := &Group{config: config, logger: loggerOr(o.logger)}
	for _, active := range actives {
		if active == nil {
			continue
		}
		if active.Started() {
			panic(errors.Wrapf(ErrAlreadyStarted, "%s", active.ID()))
		}
		group.actives = append(group.actives, active)
	}
	return group
}

// Actives returns a snapshot of the group's active objects.
func (group *Group) Actives() []*Active {
	return slices.Clone(group.actives)
}

// Run starts every active object and waits until all of them have terminated.
// If one cannot be started, the others are stopped and the error returned.
func (group *Group) Run(ctx context.Context) error {
	priorities := make([]int, len(group.actives))
	for i, active := range group.actives {
		if group.config == nil {
			priorities[i] = i
			continue
		}
		priority, ok := group.config.Priority(active.Name())
		if !ok {
			return errors.Wrapf(ErrInvalidConfig, "no priority configured for %s", active.Name())
		}
		priorities[i] = priority
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group.mu.Lock()
	group.cancel = cancel
	group.mu.Unlock()

	eg, ctx := errgroup.WithContext(ctx)
	for i, active := range group.actives {
		eg.Go(func() error {
			return active.Run(ctx, priorities[i])
		})
	}
	err := eg.Wait()
	group.logger.Debug("qhsm: group stopped", "actives", len(group.actives), "error", err)
	return err
}

// Stop cancels every pump started by Run.
func (group *Group) Stop() {
	group.mu.Lock()
	defer group.mu.Unlock()
	if group.cancel != nil {
		group.cancel()
	}
}

// PostFifo posts e to every active object of the group and returns the
// errors joined.
func (group *Group) PostFifo(e Event) error {
	var errs error
	for _, active := range group.actives {
		errs = errors.CombineErrors(errs, active.PostFifo(e))
	}
	return errs
}
