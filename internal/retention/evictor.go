package retention

import (
	"context"
	"fmt"
	"time"

	epoch "github.com/okian/cull/internal/domain/epoch"
	"github.com/okian/cull/pkg/logger"
	"github.com/okian/cull/pkg/metrics"
)

// Default evictor configuration constants.
const (
	// defaultTargetRatio is the hysteresis target: runs evict down to
	// 95% of capacity, not 100%, so an over-quota project does not
	// re-trigger the survey on every following insert.
	defaultTargetRatio = 0.95
)

// Store defines the event-store operations the engine consumes. The
// concrete backing is relational, but any store honoring set-based
// aggregates and deletes over (project, never_evict, item_irrelevance,
// server_side_timestamp) satisfies it. Implementations must exclude
// protected events from every one of these except CountEvents.
type Store interface {
	// CountEvents returns the number of stored events for the project,
	// protected ones included.
	CountEvents(ctx context.Context, projectID string) (int64, error)

	// OldestEvictable returns the minimum server-side timestamp among
	// evictable events; ok is false when none exist.
	OldestEvictable(ctx context.Context, projectID string) (time.Time, bool, error)

	// MaxItemIrrelevance returns the maximum item irrelevance among
	// evictable events inside the given epoch bounds (lower inclusive,
	// upper exclusive, nil unbounded), or 0 when none match.
	MaxItemIrrelevance(ctx context.Context, projectID string, lower, upper *epoch.Epoch) (int, error)

	// DeleteEvictable deletes, in one statement, every evictable event
	// with item irrelevance strictly greater than irrelevanceGT and,
	// when upper is non-nil, a server-side timestamp before upper's
	// boundary instant. It returns the number of rows deleted.
	DeleteEvictable(ctx context.Context, projectID string, irrelevanceGT int, upper *epoch.Epoch) (int64, error)
}

// Result is the diagnostic record of one eviction run.
type Result struct {
	Deleted        int64
	FinalCount     int64
	StartThreshold int
	EndThreshold   int
	SurveyQueries  int
	SweepQueries   int
	SurveyDuration time.Duration
	SweepDuration  time.Duration
}

// Evictor runs bounded, batched evictions against a Store.
type Evictor struct {
	store       Store
	targetRatio float64
	logger      logger.Logger
}

// Option applies a configuration option to the Evictor.
type Option func(*Evictor)

// WithTargetRatio overrides the hysteresis target ratio. Values outside
// (0, 1] are ignored.
func WithTargetRatio(ratio float64) Option {
	return func(e *Evictor) {
		if ratio > 0 && ratio <= 1 {
			e.targetRatio = ratio
		}
	}
}

// WithLogger sets a custom logger for the evictor.
func WithLogger(l logger.Logger) Option {
	return func(e *Evictor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Evictor with configuration options.
func New(store Store, opts ...Option) *Evictor {
	e := &Evictor{
		store:       store,
		targetRatio: defaultTargetRatio,
		logger:      logger.Get().Named("retention"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// ShouldEvict reports whether an eviction run is due: strictly over
// capacity, so a project sitting exactly at its maximum is left alone.
func ShouldEvict(storedCount, maxEventCount int64) bool {
	return storedCount > maxEventCount
}

// LoweredTarget returns the count an eviction run evicts down to.
func (e *Evictor) LoweredTarget(maxEventCount int64) int64 {
	return int64(float64(maxEventCount) * e.targetRatio)
}

// EvictForMaxEvents reduces the project's stored event count to the
// lowered target. storedCount may be passed in to save a query when the
// caller just counted (the usual case on the digest path); pass a
// negative value to have the engine count.
//
// The run has two phases. The survey phase gathers the per-bucket
// maximum item irrelevances once. The sweep phase then lowers a
// combined-irrelevance threshold one step at a time, starting just
// below the observed maximum so the very first step evicts exactly the
// most irrelevant events, and invokes set-based deletes per bucket
// until the target is reached. The sweep operates purely on the survey
// data plus irrelevance algebra, trading a little over/undershoot
// precision for never repeating the expensive aggregate scans.
//
// A threshold falling below -1 before the target is reached means the
// evictable candidates are exhausted (for instance, everything left is
// protected); that is reported as ErrEvictionExhausted and not retried.
func (e *Evictor) EvictForMaxEvents(ctx context.Context, projectID string, maxEventCount int64, now time.Time, storedCount int64) (Result, error) {
	var res Result

	surveyStart := time.Now()
	if storedCount < 0 {
		n, err := e.store.CountEvents(ctx, projectID)
		res.SurveyQueries++
		if err != nil {
			return res, fmt.Errorf("count events: %w", err)
		}
		storedCount = n
	}

	plan, queries, err := e.survey(ctx, projectID, now)
	res.SurveyQueries += queries
	if err != nil {
		return res, err
	}

	threshold := plan.MaxTotalIrrelevance()
	res.StartThreshold = threshold
	res.EndThreshold = threshold
	res.SurveyDuration = time.Since(surveyStart)

	sweepStart := time.Now()
	target := e.LoweredTarget(maxEventCount)
	quotaBase := maxEventCount - target

	var deleted int64
	for storedCount-deleted > target {
		// Decrement before evicting: deletion is strictly-greater-than,
		// so the first step targets precisely the observed maximum.
		threshold--

		n, q, err := e.evictForIrrelevance(ctx, projectID, threshold, plan.WorkAt(threshold), quotaBase-deleted)
		deleted += n
		res.SweepQueries += q
		if err != nil {
			res.Deleted = deleted
			return res, err
		}

		if threshold < -1 {
			// Can still happen when a capacity's worth of events cannot
			// be evicted at all.
			res.Deleted = deleted
			res.EndThreshold = threshold
			res.SweepDuration = time.Since(sweepStart)
			metrics.RecordEvictionExhausted()
			e.logger.Error(ctx, "eviction exhausted before reaching target",
				logger.String("project", projectID),
				logger.Int64("stored", storedCount),
				logger.Int64("deleted", deleted),
				logger.Int64("target", target),
			)
			return res, fmt.Errorf("project %s: %w", projectID, ErrEvictionExhausted)
		}
	}

	res.Deleted = deleted
	res.FinalCount = storedCount - deleted
	res.EndThreshold = threshold
	res.SweepDuration = time.Since(sweepStart)

	e.observe(ctx, projectID, res)
	return res, nil
}

// evictForIrrelevance performs one sweep step: for each bucket, newest
// first, delete everything whose item irrelevance pushes the total
// strictly above maxTotal. Only each bucket's exclusive upper bound is
// applied; the missing lower bound is deliberate, since the same sweep
// visits older buckets with still-lower item thresholds that capture
// the overlap anyway (see Store.DeleteEvictable).
func (e *Evictor) evictForIrrelevance(ctx context.Context, projectID string, maxTotal int, buckets []Bucket, quota int64) (int64, int, error) {
	var deleted int64
	queries := 0

	for _, b := range buckets {
		maxItem := maxTotal - b.AgeIrrelevance

		n, err := e.store.DeleteEvictable(ctx, projectID, maxItem, b.Upper)
		queries++
		if err != nil {
			return deleted, queries, fmt.Errorf("evict bucket: %w", err)
		}
		deleted += n

		if maxItem <= -1 {
			// Item irrelevance is never negative, so this call already
			// deleted every evictable event below the bucket's bound;
			// older buckets have nothing left to contribute.
			break
		}

		if deleted >= quota {
			// Quota reached. Buckets are visited newest first, so
			// stopping here spares older events disproportionately
			// within this run; that asymmetry is accepted, not a bug.
			break
		}
	}

	return deleted, queries, nil
}

// observe emits the per-run diagnostic record.
func (e *Evictor) observe(ctx context.Context, projectID string, res Result) {
	metrics.RecordEvictionRun()
	metrics.RecordEventsEvicted(float64(res.Deleted))
	metrics.RecordSurveyDuration(float64(res.SurveyDuration.Milliseconds()))
	metrics.RecordSweepDuration(float64(res.SweepDuration.Milliseconds()))
	metrics.RecordSurveyQueries(float64(res.SurveyQueries))
	metrics.RecordSweepQueries(float64(res.SweepQueries))
	metrics.UpdateEvictionThresholds(res.StartThreshold, res.EndThreshold)
	metrics.UpdateStoredEvents(projectID, res.FinalCount)

	e.logger.Info(ctx, "eviction complete",
		logger.String("project", projectID),
		logger.Int64("deleted", res.Deleted),
		logger.Int64("final_count", res.FinalCount),
		logger.Int("threshold_start", res.StartThreshold),
		logger.Int("threshold_end", res.EndThreshold),
		logger.Int("survey_queries", res.SurveyQueries),
		logger.Int("sweep_queries", res.SweepQueries),
		logger.Any("survey_ms", res.SurveyDuration.Milliseconds()),
		logger.Any("sweep_ms", res.SweepDuration.Milliseconds()),
	)
}
