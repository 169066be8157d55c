// Package queue carries invalidation signals from the write path to the
// recompute worker.
//
// The in-memory implementation is a bounded channel. Enqueue never blocks:
// when the queue is full the signal is dropped, which is safe because the
// scheduled recompute picks up every change anyway.
package queue

import (
	"context"
	"sync"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a signal to the queue.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, inv model.Invalidation) bool

	// Dequeue returns a channel that receives signals as they arrive.
	// The channel is closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan model.Invalidation

	// Len returns the current number of queued signals.
	Len(ctx context.Context) int

	// Close stops accepting signals. Queued ones are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	signals  chan model.Invalidation
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.signals = make(chan model.Invalidation, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a signal to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, inv model.Invalidation) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordInvalidationDropped()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	select {
	case q.signals <- inv:
		metrics.RecordInvalidationEnqueued()
		metrics.UpdateQueueSize(len(q.signals))
		return true
	case <-ctx.Done():
		metrics.RecordInvalidationDropped()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordInvalidationDropped()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that receives signals as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Invalidation {
	out := make(chan model.Invalidation)
	go func() {
		defer close(out)
		for inv := range q.signals {
			select {
			case out <- inv:
				metrics.UpdateQueueSize(len(q.signals))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued signals.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.signals)
	metrics.UpdateQueueSize(size)
	return size
}

// Capacity returns the maximum number of queued signals.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.signals)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
