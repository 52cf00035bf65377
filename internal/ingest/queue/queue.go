// Package queue provides the bounded accept queue between HTTP handlers
// and the batcher: a buffered channel of event values. Handing events
// over by value keeps ownership simple — an event lives in exactly one
// place at a time.
package queue

import (
	"github.com/atlas-stream/event-pipeline/internal/ingest"
)

// Queue is a bounded multi-producer single-consumer handoff.
type Queue struct {
	ch chan ingest.Event
}

// New creates a queue holding at most size events.
func New(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan ingest.Event, size)}
}

// TryPush enqueues the event without blocking. It returns false when the
// queue is full — the caller's backpressure signal.
func (q *Queue) TryPush(e ingest.Event) bool {
	select {
	case q.ch <- e:
		return true
	default:
		return false
	}
}

// C exposes the receive side for the single consumer.
func (q *Queue) C() <-chan ingest.Event {
	return q.ch
}

// TryPop dequeues one event without blocking.
func (q *Queue) TryPop() (ingest.Event, bool) {
	select {
	case e := <-q.ch:
		return e, true
	default:
		return ingest.Event{}, false
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue's capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
