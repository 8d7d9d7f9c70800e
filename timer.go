package qhsm

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Poster accepts events. *Active implements it.
type Poster interface {
	PostFifo(e Event) error
}

// Timer posts an event to its owner once after a delay, or periodically. A
// timer holds at most one armed event; arming again replaces it.
type Timer struct {
	owner Poster

	mu         sync.Mutex
	timer      *time.Timer
	event      Event
	period     time.Duration
	generation uint64
}

// NewTimer returns a disarmed timer posting to owner.
func NewTimer(owner Poster) *Timer {
	return &Timer{owner: owner}
}

// FireIn posts e to the owner once, after d.
func (t *Timer) FireIn(d time.Duration, e Event) error {
	return t.arm(d, 0, e)
}

// FireEvery posts e to the owner every p, the first time after p.
func (t *Timer) FireEvery(p time.Duration, e Event) error {
	return t.arm(p, p, e)
}

func (t *Timer) arm(delay, period time.Duration, e Event) error {
	if delay <= 0 {
		return errors.Wrapf(ErrInvalidDuration, "%s", delay)
	}
	if err := validatePost(e); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.event = e
	t.period = period
	t.startLocked(delay)
	return nil
}

func (t *Timer) startLocked(d time.Duration) {
	generation := t.generation
	t.timer = time.AfterFunc(d, func() {
		t.fire(generation)
	})
}

func (t *Timer) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.generation++
}

// fire posts under the lock so that Disarm, once it returns, is final.
func (t *Timer) fire(generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation || t.event.IsZero() {
		return
	}
	e := t.event
	if t.period > 0 {
		t.startLocked(t.period)
	} else {
		t.timer = nil
	}
	if err := t.owner.PostFifo(e); err != nil {
		Logger.Warn("qhsm: timer post failed", "signal", e.signal, "error", err)
	}
}

// Disarm cancels any pending post and forgets the event. A callback already
// racing with Disarm does not post.
func (t *Timer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.event = empty
	t.period = 0
}

// Rearm restarts the countdown with a new delay, keeping the held event and
// whether the timer is periodic. A periodic timer keeps its period.
func (t *Timer) Rearm(d time.Duration) error {
	if d <= 0 {
		return errors.Wrapf(ErrInvalidDuration, "%s", d)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.event.IsZero() {
		return ErrNotArmed
	}
	t.stopLocked()
	t.startLocked(d)
	return nil
}

// Armed reports whether a post is pending.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}
