// Package worker scores queued rally batches in the background.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/rallyscore/internal/domain/model"
	"github.com/okian/rallyscore/pkg/logger"
	"github.com/okian/rallyscore/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Processor scores a batch of observations together with the stored points
// of the games the batch continues.
type Processor interface {
	Rescore(ctx context.Context, stored []model.EnrichedPoint, rows []model.RallyObservation) (model.Report, error)
}

// Sink stores scored points and returns what is already stored for a match.
// SaveRallies overwrites stored points that changed and reports how many
// points were written.
type Sink interface {
	SaveRallies(ctx context.Context, batchID string, points []model.EnrichedPoint) (int, error)
	ListRallies(ctx context.Context, matchID int) ([]model.EnrichedPoint, error)
}

// Publisher announces scored points to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, batchID string, points []model.EnrichedPoint) error
}

// Queue defines how workers receive batches.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Batch
}

// InMemoryWorker runs batches from a queue through a Processor.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	sink      Sink
	publisher Publisher
	name      string

	locks    *matchLocks
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		name:      "worker",
		locks:     newMatchLocks(),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run consumes batches until the queue closes, ctx is cancelled or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	batches := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case b, ok := <-batches:
			if !ok {
				return
			}
			if err := w.Process(ctx, b); err != nil {
				w.logger.Error(ctx, "error processing batch", logger.String("batchID", b.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker and waits for the current batch.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Process scores one batch, then stores and publishes the result. With a
// sink, the stored points of every game the batch touches are scored again
// with it, and batches of the same match are processed one at a time.
func (w *InMemoryWorker) Process(ctx context.Context, b model.Batch) error { //nolint:gocritic // hugeParam: batches arrive by value from the queue
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	var stored []model.EnrichedPoint
	if w.sink != nil {
		ids := matchIDs(b.Observations)
		unlock := w.locks.lock(ids)
		defer unlock()

		for _, id := range ids {
			points, err := w.sink.ListRallies(ctx, id)
			if err != nil {
				w.fail("store_error")
				return fmt.Errorf("load match %d for batch %s: %w", id, b.ID, err)
			}
			stored = append(stored, points...)
		}
	}

	report, err := w.processor.Rescore(ctx, stored, b.Observations)
	if err != nil {
		w.fail("pipeline_error")
		return fmt.Errorf("score batch %s: %w", b.ID, err)
	}

	if w.sink != nil {
		written, err := w.sink.SaveRallies(ctx, b.ID, report.Points)
		if err != nil {
			w.fail("store_error")
			return fmt.Errorf("store batch %s: %w", b.ID, err)
		}
		w.logger.Debug(ctx, "batch stored",
			logger.String("batchID", b.ID),
			logger.Int("written", written),
			logger.Int("unchanged", len(report.Points)-written),
		)
	}

	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, b.ID, report.Points); err != nil {
			w.fail("publish_error")
			return fmt.Errorf("publish batch %s: %w", b.ID, err)
		}
	}

	metrics.RecordBatchProcessed()
	w.logger.Info(ctx, "batch scored",
		logger.String("batchID", b.ID),
		logger.Int("matchID", b.MatchID),
		logger.Int("points", report.Summary.Points),
		logger.Int("unresolved", report.Summary.Unresolved),
		logger.Int("blocked", report.Summary.Blocked),
	)
	return nil
}

func (w *InMemoryWorker) fail(kind string) {
	metrics.RecordWorkerError()
	metrics.RecordErrorByComponent("worker", kind)
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	logger  logger.Logger
}

// NewPool creates workerCount workers sharing one queue and processor.
func NewPool(workerCount int, q Queue, p Processor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		logger:  logger.Get().Named("worker-pool"),
	}
	locks := newMatchLocks()
	for i := range workerCount {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i)), withLocks(locks)}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, p, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown waits for every worker to drain the closed queue, then stops them.
// The queue must be closed by the caller first or workers stop immediately.
func (p *Pool) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if err := w.Shutdown(shutdownCtx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	metrics.UpdateWorkerCount(0)
	return firstErr
}
