// Package worker defines the digest workers that drain the ingest
// queue into the event store.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/cull/internal/domain/model"
	"github.com/okian/cull/pkg/logger"
	"github.com/okian/cull/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU(); digests are store-bound
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Event abstracts what workers read off the queue.
type Event = model.Event

// Digester turns a raw ingested event into a stored one: it assigns
// the retention bookkeeping, writes the row, and triggers an eviction
// run when the project crossed its capacity.
type Digester interface {
	Digest(ctx context.Context, e Event) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// DigestWorker implements Worker for draining the ingest queue.
type DigestWorker struct {
	queue    Queue
	digester Digester
	name     string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewDigestWorker creates a new worker with configuration options.
func NewDigestWorker(queue Queue, digester Digester, opts ...Option) *DigestWorker {
	w := &DigestWorker{
		queue:    queue,
		digester: digester,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *DigestWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-events:
			if !ok {
				// Queue closed; worker drains out.
				return
			}

			if err := w.process(ctx, event); err != nil {
				w.logger.Error(ctx, "error digesting event", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *DigestWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process handles a single event.
func (w *DigestWorker) process(ctx context.Context, event Event) error { //nolint:gocritic // hugeParam: Event passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.digester.Digest(ctx, event); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "digest_error")
		metrics.RecordErrorByType("digest_error", "high")
		w.logger.Error(ctx, "digest failed for event",
			logger.String("eventID", event.ID),
			logger.String("project", event.ProjectID),
			logger.Error(err),
		)
		return fmt.Errorf("digest event %s: %w", event.ID, err)
	}

	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers  []*DigestWorker
	queue    Queue
	digester Digester

	// Shutdown control
	shutdown chan struct{}

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, digester Digester) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:  make([]*DigestWorker, workerCount),
		queue:    queue,
		digester: digester,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewDigestWorker(
			queue,
			digester,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	close(p.shutdown)

	for _, w := range p.workers {
		ctx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
		_ = w.Shutdown(ctx)
		cancel()
	}
}

// Shutdown gracefully shuts down the entire worker pool, closing the
// queue first so workers drain the remaining events.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	deadline, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-deadline.Done():
			return fmt.Errorf("pool shutdown: %w", deadline.Err())
		}
	}
	return nil
}
