// Package worker runs the index repair workers that consume the repair queue.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/adroute/internal/adapters/mq/queue"
	"github.com/okian/adroute/pkg/logger"
	"github.com/okian/adroute/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount    = 2
	metricsUpdateInterval = 5 * time.Second
	jobTimeout            = 2 * time.Second
)

// Job is what workers read off the queue.
type Job = queue.Job

// Handler repairs one job.
type Handler interface {
	Handle(ctx context.Context, j Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, j Job) error { return f(ctx, j) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// InMemoryWorker pulls jobs off a Queue and hands them to a Handler.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	// Shared with the pool; nil for a standalone worker.
	busy      *atomic.Int64
	processed *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, h Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		handler:  h,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run processes jobs until the queue drains after Close, ctx is cancelled,
// or Abort is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordRepairDequeue()
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "repair job failed",
					logger.String("ref", j.Ref.String()),
					logger.Error(err),
				)
			}
		}
	}
}

// Abort stops the worker without draining the queue.
func (w *InMemoryWorker) Abort() {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, j Job) error {
	start := time.Now()
	if w.busy != nil {
		w.busy.Add(1)
		defer w.busy.Add(-1)
	}
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		if w.processed != nil {
			w.processed.Add(1)
		}
	}()

	jctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()
	if err := w.handler.Handle(jctx, j); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("repair_worker", "handler_error")
		return fmt.Errorf("repair %s: %w", j.Ref, err)
	}
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	busy      atomic.Int64
	processed atomic.Int64
	lastTick  time.Time

	stopMetrics chan struct{}
	logger      logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, q Queue, h Handler) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	p := &Pool{
		workers:     make([]*InMemoryWorker, workerCount),
		queue:       q,
		lastTick:    time.Now(),
		stopMetrics: make(chan struct{}),
		logger:      logger.Get().Named("repair-pool"),
	}
	for i := 0; i < workerCount; i++ {
		p.workers[i] = NewInMemoryWorker(q, h,
			WithName("repair-worker-"+strconv.Itoa(i)),
			withCounters(&p.busy, &p.processed),
		)
	}

	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of jobs handled so far, failed or not.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.runMetrics(ctx)
}

func (p *Pool) runMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopMetrics:
			return
		case now := <-ticker.C:
			cur := p.processed.Load()
			if secs := now.Sub(p.lastTick).Seconds(); secs > 0 {
				metrics.UpdateWorkerMessagesPerSecond(float64(cur-last) / secs)
			}
			last, p.lastTick = cur, now
			busy := int(p.busy.Load())
			metrics.UpdateWorkerActiveCount(busy)
			metrics.UpdateWorkerIdleCount(len(p.workers) - busy)
		}
	}
}

// Shutdown closes the queue and waits for workers to drain it. Workers still
// running when ctx expires are aborted.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	close(p.stopMetrics)

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			w.Abort()
		}
	}
	if timedOut {
		return fmt.Errorf("repair pool shutdown: %w", ctx.Err())
	}
	return nil
}
