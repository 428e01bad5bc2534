// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	eventqueue "github.com/okian/cull/internal/adapters/mq/queue"
	workerpool "github.com/okian/cull/internal/adapters/mq/worker"
	repository "github.com/okian/cull/internal/adapters/repository"
	"github.com/okian/cull/internal/domain/dedupe"
	"github.com/okian/cull/internal/domain/irrelevance"
	"github.com/okian/cull/internal/domain/model"
	"github.com/okian/cull/internal/retention"
	"github.com/okian/cull/pkg/logger"
	"github.com/okian/cull/pkg/metrics"
)

// Service implements the API dependencies for the event tracker.
// It owns the ingestion pipeline: dedupe, queue, digest workers, the
// event store and the retention evictor.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.EventStore
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	assigner   *irrelevance.Assigner
	evictor    *retention.Evictor
	workerPool *workerpool.Pool

	// At most one eviction pass per project at a time; concurrent
	// digests over quota piggyback on the in-flight pass.
	evictions singleflight.Group

	// Most recent eviction outcome per project, surfaced in stats.
	lastEvictionMu sync.RWMutex
	lastEviction   map[string]model.EvictionOutcome

	// Configuration
	databasePath         string
	busyTimeout          time.Duration
	workerCount          int
	queueSize            int
	dedupeSize           int
	defaultMaxEventCount int64
	targetRatio          float64

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDatabasePath sets the SQLite file backing the event store.
func WithDatabasePath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.databasePath = path
		}
	}
}

// WithStore injects an already opened event store. The service takes
// ownership and closes it on Stop.
func WithStore(store repository.EventStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithWorkerCount sets the number of digest worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDefaultMaxEventCount sets the retention quota used for projects
// created without an explicit limit.
func WithDefaultMaxEventCount(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultMaxEventCount = n
		}
	}
}

// WithTargetRatio sets the eviction hysteresis ratio.
func WithTargetRatio(ratio float64) Option {
	return func(s *Service) {
		if ratio > 0 && ratio <= 1 {
			s.targetRatio = ratio
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		databasePath:         "cull.db",
		busyTimeout:          5 * time.Second,
		workerCount:          runtime.NumCPU() * 2,
		queueSize:            100_000,
		dedupeSize:           50_000,
		defaultMaxEventCount: 10_000,
		targetRatio:          0.95,
		lastEviction:         make(map[string]model.EvictionOutcome),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting event tracker service...")

	if s.store == nil {
		store, err := repository.Open(s.databasePath, repository.WithBusyTimeout(s.busyTimeout))
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		s.store = store
	}

	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	s.assigner = irrelevance.NewAssigner()
	s.evictor = retention.New(s.store,
		retention.WithTargetRatio(s.targetRatio),
		retention.WithLogger(s.logger),
	)

	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "event tracker service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Stop gracefully shuts down the service, draining queued events first.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info(ctx, "stopping event tracker service...")

	if s.workerPool != nil {
		if err := s.workerPool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "closing event store", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "event tracker service stopped")
}

// SeenAndRecord atomically checks if an event id was seen and records it
// if not. Returns true if the event was already seen.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordEventDuplicate()
	}
	return seen
}

// Unrecord removes an event ID from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// Enqueue submits an event for asynchronous digestion. Returns false
// when the queue rejects the event.
func (s *Service) Enqueue(ctx context.Context, e model.Event) bool {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if ok := s.eventQueue.Enqueue(ctx, e); !ok {
		metrics.RecordEventDropped()
		return false
	}
	metrics.UpdateQueueSize(s.eventQueue.Len(ctx))
	return true
}

// Digest stores one event and runs the retention pass when the project
// goes over quota. It is called by the worker pool.
func (s *Service) Digest(ctx context.Context, e model.Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordDigestLatency(float64(time.Since(start).Milliseconds()))
	}()

	project, err := s.store.Project(ctx, e.ProjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RecordEventDropped()
			s.logger.Warn(ctx, "dropping event for unknown project",
				logger.String("eventID", e.ID),
				logger.String("project", e.ProjectID),
			)
			return nil
		}
		return fmt.Errorf("load project %s: %w", e.ProjectID, err)
	}

	digested, err := s.store.IssueEventCount(ctx, e.ProjectID, e.IssueID)
	if err != nil {
		return fmt.Errorf("issue event count: %w", err)
	}

	// The first event of an issue is its representative and is kept
	// forever. Irrelevance is drawn from the count including this event.
	e.NeverEvict = digested == 0
	e.ItemIrrelevance = s.assigner.ForEventCount(digested + 1)
	e.ServerSideTimestamp = time.Now().UTC()

	if err := s.store.InsertEvent(ctx, e); err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	metrics.RecordEventIngested()

	stored, err := s.store.CountEvents(ctx, e.ProjectID)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	metrics.UpdateStoredEvents(e.ProjectID, stored)

	if !retention.ShouldEvict(stored, project.MaxEventCount) {
		return nil
	}

	return s.evict(ctx, project, stored)
}

// evict runs one retention pass for the project, collapsing concurrent
// requests into a single flight.
func (s *Service) evict(ctx context.Context, project model.Project, stored int64) error {
	v, err, shared := s.evictions.Do(project.ID, func() (interface{}, error) {
		res, err := s.evictor.EvictForMaxEvents(ctx, project.ID, project.MaxEventCount, time.Now(), stored)
		s.recordEviction(project.ID, res, err)
		if err != nil {
			return retention.Result{}, err
		}
		metrics.UpdateStoredEvents(project.ID, res.FinalCount)
		return res, nil
	})
	if err != nil {
		return fmt.Errorf("evict project %s: %w", project.ID, err)
	}
	if shared {
		return nil
	}

	res, ok := v.(retention.Result)
	if ok {
		s.logger.Debug(ctx, "eviction pass finished",
			logger.String("project", project.ID),
			logger.Int64("deleted", res.Deleted),
			logger.Int64("finalCount", res.FinalCount),
		)
	}
	return nil
}

// recordEviction keeps the most recent eviction outcome per project.
func (s *Service) recordEviction(projectID string, res retention.Result, err error) {
	s.lastEvictionMu.Lock()
	defer s.lastEvictionMu.Unlock()
	s.lastEviction[projectID] = model.EvictionOutcome{
		At:         time.Now().UTC(),
		Deleted:    res.Deleted,
		FinalCount: res.FinalCount,
		Exhausted:  errors.Is(err, retention.ErrEvictionExhausted),
	}
}

// CreateProject registers a new project. A non-positive maxEventCount
// falls back to the service default.
func (s *Service) CreateProject(ctx context.Context, name string, maxEventCount int64) (model.Project, error) {
	if maxEventCount <= 0 {
		maxEventCount = s.defaultMaxEventCount
	}
	p := model.Project{
		ID:            uuid.NewString(),
		Name:          name,
		MaxEventCount: maxEventCount,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return model.Project{}, fmt.Errorf("create project: %w", err)
	}
	s.logger.Info(ctx, "project created",
		logger.String("project", p.ID),
		logger.String("name", p.Name),
		logger.Int64("maxEventCount", p.MaxEventCount),
	)
	return p, nil
}

// Projects lists all registered projects.
func (s *Service) Projects(ctx context.Context) ([]model.Project, error) {
	projects, err := s.store.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	metrics.UpdateTotalProjects(len(projects))
	return projects, nil
}

// ProjectStats returns stored event and issue counts for a project.
func (s *Service) ProjectStats(ctx context.Context, projectID string) (model.ProjectStats, error) {
	stats, err := s.store.ProjectStats(ctx, projectID)
	if err != nil {
		return model.ProjectStats{}, fmt.Errorf("project stats: %w", err)
	}

	s.lastEvictionMu.RLock()
	if outcome, ok := s.lastEviction[projectID]; ok {
		stats.LastEviction = &outcome
	}
	s.lastEvictionMu.RUnlock()

	return stats, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerPool.Size())
	}

	return stats
}
