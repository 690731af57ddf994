package app

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rallyscore/internal/adapters/mq/queue"
	"github.com/okian/rallyscore/internal/adapters/mq/worker"
	"github.com/okian/rallyscore/internal/adapters/publisher"
	"github.com/okian/rallyscore/internal/adapters/repository"
	"github.com/okian/rallyscore/internal/domain/dedupe"
	"github.com/okian/rallyscore/internal/domain/model"
	"github.com/okian/rallyscore/pkg/logger"
	"github.com/okian/rallyscore/pkg/metrics"
)

// Service implements the dependencies of the HTTP API: synchronous scoring,
// asynchronous batch submission and access to stored matches and rallies.
type Service struct {
	mu sync.RWMutex

	pipeline  *Pipeline
	store     repository.Store
	ownsStore bool
	publisher publisher.Publisher
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool

	workerCount int
	queueSize   int
	dedupeSize  int

	started bool
	cancel  context.CancelFunc
	now     func() time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued batches.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the batch id cache. Zero disables eviction.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPipeline sets the scoring pipeline.
func WithPipeline(p *Pipeline) Option {
	return func(s *Service) {
		if p != nil {
			s.pipeline = p
		}
	}
}

// WithStore sets the store. The caller keeps ownership and closes it.
// Without a store the service opens a private in-memory one.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithPublisher sets where scored batches are announced. The service closes it on Stop.
func WithPublisher(p publisher.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   1_000,
		dedupeSize:  10_000,
		publisher:   publisher.Nop{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.pipeline == nil {
		s.pipeline = NewPipeline()
	}
	return s
}

// Start opens the store if needed and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting rally service...")

	if s.store == nil {
		st, err := repository.Open(ctx, "")
		if err != nil {
			return fmt.Errorf("open in-memory store: %w", err)
		}
		s.store = st
		s.ownsStore = true
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.pipeline,
		worker.WithSink(s.store),
		worker.WithPublisher(s.publisher),
	)

	// Workers outlive the request that started the service; Stop cancels them.
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(wctx)

	s.started = true
	s.logger.Info(ctx, "rally service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains queued batches, stops the workers and releases resources.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping rally service...")

	var errs []error
	if err := s.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()

	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		s.store = nil
		s.ownsStore = false
	}

	s.started = false
	s.logger.Info(ctx, "rally service stopped")
	return errors.Join(errs...)
}

// Score runs the pipeline synchronously.
func (s *Service) Score(ctx context.Context, rows []model.RallyObservation) (model.Report, error) {
	return s.pipeline.Run(ctx, rows)
}

// Submission acknowledges a batch.
type Submission struct {
	BatchID   string `json:"batch_id"`
	Duplicate bool   `json:"duplicate"`
	Points    int    `json:"points"`
}

// Submit queues rows of one match for asynchronous scoring. key identifies
// the batch for idempotency; an empty key gets a random id. A batch whose key
// was already accepted is acknowledged as a duplicate and not queued again.
func (s *Service) Submit(ctx context.Context, matchID int, key string, rows []model.RallyObservation) (Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return Submission{}, ErrNotStarted
	}
	if len(rows) == 0 {
		return Submission{}, ErrEmptyBatch
	}
	obs := make([]model.RallyObservation, len(rows))
	for i := range rows {
		obs[i] = rows[i]
		switch obs[i].MatchID {
		case 0:
			obs[i].MatchID = matchID
		case matchID:
		default:
			return Submission{}, fmt.Errorf("%w: row %d has match %d, want %d", ErrMatchMismatch, i, obs[i].MatchID, matchID)
		}
	}

	if key == "" {
		key = uuid.NewString()
	}
	sub := Submission{BatchID: key, Points: len(obs)}
	if s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordBatchDuplicate()
		s.logger.Debug(ctx, "duplicate batch", logger.String("batchID", key))
		sub.Duplicate = true
		return sub, nil
	}

	err := s.queue.Enqueue(ctx, model.Batch{ID: key, MatchID: matchID, Observations: obs, ReceivedAt: s.now()})
	if err != nil {
		s.deduper.Unrecord(ctx, key)
		if errors.Is(err, queue.ErrFull) {
			return Submission{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return Submission{}, err
	}
	return sub, nil
}

// SaveMatch stores match metadata.
func (s *Service) SaveMatch(ctx context.Context, m model.Match) error { //nolint:gocritic // hugeParam: mirrors the store
	st, err := s.storeOrErr()
	if err != nil {
		return err
	}
	return st.SaveMatch(ctx, m)
}

// GetMatch loads match metadata.
func (s *Service) GetMatch(ctx context.Context, id int) (model.Match, error) {
	st, err := s.storeOrErr()
	if err != nil {
		return model.Match{}, err
	}
	return st.GetMatch(ctx, id)
}

// ListMatches lists all matches.
func (s *Service) ListMatches(ctx context.Context) ([]model.Match, error) {
	st, err := s.storeOrErr()
	if err != nil {
		return nil, err
	}
	return st.ListMatches(ctx)
}

// ListRallies lists the stored points of a match.
func (s *Service) ListRallies(ctx context.Context, matchID int) ([]model.EnrichedPoint, error) {
	st, err := s.storeOrErr()
	if err != nil {
		return nil, err
	}
	return st.ListRallies(ctx, matchID)
}

func (s *Service) storeOrErr() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if !s.started {
		return stats
	}
	stats["queueLength"] = s.queue.Len()
	stats["seenBatches"] = s.deduper.Size()
	if n, err := s.store.Count(context.Background()); err == nil {
		stats["storedRallies"] = n
	}
	return stats
}
