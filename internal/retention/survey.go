package retention

import (
	"context"
	"fmt"
	"time"

	epoch "github.com/okian/cull/internal/domain/epoch"
)

// Plan is the short-lived value object produced by the survey phase.
// It pairs each bucket with the maximum item irrelevance observed among
// that bucket's evictable events, and is the only store-derived state
// the sweep loop operates on: the loop never re-surveys mid-run.
type Plan struct {
	Buckets []Bucket
	Maxima  []int // per bucket; 0 when the bucket holds no evictable events
}

// MaxTotalIrrelevance returns the highest combined (age + item)
// irrelevance any bucket could currently contain. The sweep starts its
// threshold here.
func (p Plan) MaxTotalIrrelevance() int {
	maxTotal := 0
	for i, b := range p.Buckets {
		if t := b.AgeIrrelevance + p.Maxima[i]; i == 0 || t > maxTotal {
			maxTotal = t
		}
	}
	return maxTotal
}

// WorkAt returns the buckets that could still contain an event with
// total irrelevance strictly above threshold, preserving newest-first
// order. It is a stateless filter over the already-gathered survey
// data, not an additional store query: a bucket whose surveyed maximum
// cannot exceed the threshold cannot yield a deletion.
func (p Plan) WorkAt(threshold int) []Bucket {
	work := make([]Bucket, 0, len(p.Buckets))
	for i, b := range p.Buckets {
		if b.AgeIrrelevance+p.Maxima[i] > threshold {
			work = append(work, b)
		}
	}
	return work
}

// survey runs the planning phase: one aggregate for the oldest
// evictable timestamp, then one max-item-irrelevance aggregate per
// bucket. queries reports how many store calls were issued.
func (e *Evictor) survey(ctx context.Context, projectID string, now time.Time) (Plan, int, error) {
	queries := 1
	oldest, ok, err := e.store.OldestEvictable(ctx, projectID)
	if err != nil {
		return Plan{}, queries, fmt.Errorf("survey oldest: %w", err)
	}

	current := epoch.FromTime(now)
	first := current
	if ok {
		first = epoch.FromTime(oldest)
	}

	buckets := PlanBuckets(first, current)
	maxima := make([]int, 0, len(buckets))
	for _, b := range buckets {
		m, err := e.store.MaxItemIrrelevance(ctx, projectID, b.Lower, b.Upper)
		queries++
		if err != nil {
			return Plan{}, queries, fmt.Errorf("survey bucket max: %w", err)
		}
		maxima = append(maxima, m)
	}

	return Plan{Buckets: buckets, Maxima: maxima}, queries, nil
}
