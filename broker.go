package qhsm

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
)

// Subscriber is what a Broker delivers to. *Active implements it.
type Subscriber interface {
	ID() string
	// Priority orders delivery, lower first. It is negative until the
	// subscriber has started.
	Priority() int
	PostFifo(e Event) error
}

// Broker delivers published events to the subscribers of their signal.
// Subscribers are visited by ascending priority, and in subscription order
// within one priority. All operations serialize on one lock.
type Broker struct {
	mu     sync.Mutex
	subs   map[Signal]map[int][]Subscriber
	logger *slog.Logger
}

// NewBroker returns a broker without subscriptions.
func NewBroker(opts ...Option) *Broker {
	o := buildOptions(opts)
	return &Broker{
		subs:   make(map[Signal]map[int][]Subscriber),
		logger: loggerOr(o.logger),
	}
}

// Subscribe adds sub under sig at the subscriber's current priority.
// Subscribing twice delivers twice.
func (b *Broker) Subscribe(sub Subscriber, sig Signal) error {
	if sig.IsZero() {
		return ErrInvalidEvent
	}
	if sig.IsPseudo() {
		return errors.Wrapf(ErrReservedSignal, "%s", sig)
	}
	priority := sub.Priority()
	if priority < 0 {
		return errors.Wrapf(ErrNotStarted, "%s", sub.ID())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	buckets, ok := b.subs[sig]
	if !ok {
		buckets = make(map[int][]Subscriber)
		b.subs[sig] = buckets
	}
	buckets[priority] = append(buckets[priority], sub)
	return nil
}

// Unsubscribe removes every subscription of sub to sig.
func (b *Broker) Unsubscribe(sub Subscriber, sig Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(sub, sig)
}

// Unregister removes every subscription of sub.
func (b *Broker) Unregister(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sig := range b.subs {
		b.remove(sub, sig)
	}
}

func (b *Broker) remove(sub Subscriber, sig Signal) {
	buckets, ok := b.subs[sig]
	if !ok {
		return
	}
	for priority, subs := range buckets {
		subs = slices.DeleteFunc(subs, func(s Subscriber) bool {
			return s == sub
		})
		if len(subs) == 0 {
			delete(buckets, priority)
		} else {
			buckets[priority] = subs
		}
	}
	if len(buckets) == 0 {
		delete(b.subs, sig)
	}
}

// Publish posts e to every subscriber of its signal before returning. A
// subscriber that rejects the event is logged and skipped.
func (b *Broker) Publish(e Event) error {
	if err := validatePost(e); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	buckets := b.subs[e.signal]
	for _, priority := range sortedPriorities(buckets) {
		for _, sub := range buckets[priority] {
			if err := sub.PostFifo(e); err != nil {
				b.logger.Warn("qhsm: publish rejected", "subscriber", sub.ID(), "signal", e.signal, "error", err)
			}
		}
	}
	return nil
}

// Subscribers returns the subscribers of sig in delivery order.
func (b *Broker) Subscribers(sig Signal) []Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	buckets := b.subs[sig]
	var subs []Subscriber
	for _, priority := range sortedPriorities(buckets) {
		subs = append(subs, buckets[priority]...)
	}
	return subs
}

func sortedPriorities(buckets map[int][]Subscriber) []int {
	priorities := make([]int, 0, len(buckets))
	for priority := range buckets {
		priorities = append(priorities, priority)
	}
	slices.Sort(priorities)
	return priorities
}
