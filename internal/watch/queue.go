package watch

import (
	"log/slog"
	"sync/atomic"
)

// DefaultCapacity is the bounded queue's default size.
const DefaultCapacity = 1000

// Queue is the single bounded back-channel between the watcher and its
// consumer. Overflow policy is drop-newest: when the buffer is full, the
// incoming event is discarded and Dropped is incremented, rather than
// blocking the producer or evicting an older, already-queued event.
// Grounded on Debouncer.flush/PollingWatcher.emitEvent
// non-blocking-send pattern.
type Queue struct {
	events  chan Event
	dropped atomic.Uint64
}

// NewQueue creates a queue with the given capacity. capacity <= 0 uses
// DefaultCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{events: make(chan Event, capacity)}
}

// push enqueues e, dropping it (and counting the drop) if the queue is full.
func (q *Queue) push(e Event) {
	select {
	case q.events <- e:
	default:
		q.dropped.Add(1)
		slog.Warn("watch queue full, dropping event",
			slog.String("path", e.Path),
			slog.String("kind", string(e.Kind)),
		)
	}
}

// Events returns the channel a consumer drains.
func (q *Queue) Events() <-chan Event {
	return q.events
}

// Dropped returns the number of events discarded due to a full queue.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close closes the underlying channel. Safe to call once; a second call
// panics, matching chan close semantics — callers own the single Stop path.
func (q *Queue) Close() {
	close(q.events)
}
