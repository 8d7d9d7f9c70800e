package qhsm

import (
	"context"
	"sync"
)

// Queue is an unbounded event queue. Events posted LIFO are taken before any
// event posted FIFO, most recent first. Any number of goroutines may post;
// DeQueue blocks while the queue is empty.
type Queue struct {
	mutex sync.Mutex
	lifo  []Event
	fifo  []Event
	// ready holds a token while the queue may be non-empty.
	ready chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// EnqueueFifo appends e.
func (q *Queue) EnqueueFifo(e Event) {
	q.mutex.Lock()
	q.fifo = append(q.fifo, e)
	q.mutex.Unlock()
	q.signal()
}

// EnqueueLifo puts e ahead of every queued event.
func (q *Queue) EnqueueLifo(e Event) {
	q.mutex.Lock()
	q.lifo = append(q.lifo, e)
	q.mutex.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// DeQueue takes the next event, waiting while the queue is empty. It returns
// false once ctx is cancelled, without taking an event.
func (q *Queue) DeQueue(ctx context.Context) (Event, bool) {
	for {
		if ctx.Err() != nil {
			return empty, false
		}
		if e, ok := q.pop(); ok {
			return e, true
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return empty, false
		}
	}
}

func (q *Queue) pop() (Event, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	var event Event
	switch {
	case len(q.lifo) > 0:
		event = q.lifo[len(q.lifo)-1]
		q.lifo[len(q.lifo)-1] = empty
		q.lifo = q.lifo[:len(q.lifo)-1]
	case len(q.fifo) > 0:
		event = q.fifo[0]
		q.fifo[0] = empty
		q.fifo = q.fifo[1:]
	default:
		return empty, false
	}
	if len(q.lifo)+len(q.fifo) > 0 {
		// wake the next waiter
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
	return event, true
}

// Peek returns the event DeQueue would take next without removing it.
func (q *Queue) Peek() (Event, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	switch {
	case len(q.lifo) > 0:
		return q.lifo[len(q.lifo)-1], true
	case len(q.fifo) > 0:
		return q.fifo[0], true
	default:
		return empty, false
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.lifo) + len(q.fifo)
}

var empty = Event{}
