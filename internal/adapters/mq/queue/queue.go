// Package queue holds index repair jobs between the resolution path that
// detects stale references and the workers that prune them.
package queue

import (
	"context"
	"sync"

	"github.com/okian/adroute/internal/domain/model"
	"github.com/okian/adroute/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Job is the payload flowing through the queue.
type Job = model.RepairJob

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns the channel jobs are delivered on. It is closed, after
	// the remaining jobs drain, once the queue is closed.
	Dequeue(ctx context.Context) <-chan Job

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Cap returns the queue capacity.
	Cap() int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateRepairQueueCapacity(q.capacity)
	q.observe()
	return q
}

// Enqueue implements Queue. It never blocks.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordRepairEnqueueError()
		metrics.RecordErrorByComponent("repair_queue", "closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordRepairEnqueueError()
		metrics.RecordErrorByComponent("repair_queue", "context_cancelled")
		return false
	}

	select {
	case q.jobs <- j:
		metrics.RecordRepairEnqueue()
		q.observe()
		return true
	default:
		metrics.RecordRepairEnqueueError()
		metrics.RecordErrorByComponent("repair_queue", "queue_full")
		return false
	}
}

// Dequeue implements Queue. Every caller shares the same channel.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Job {
	return q.jobs
}

// Len implements Queue.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return q.observe()
}

// Cap implements Queue.
func (q *InMemoryQueue) Cap() int { return q.capacity }

// Close stops accepting jobs. Already queued jobs stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) observe() int {
	size := len(q.jobs)
	metrics.UpdateRepairQueueSize(size)
	metrics.UpdateRepairQueueUtilization(float64(size) / float64(q.capacity))
	return size
}
