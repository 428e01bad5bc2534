package retention

import (
	epoch "github.com/okian/cull/internal/domain/epoch"
	irrelevance "github.com/okian/cull/internal/domain/irrelevance"
)

// Bucket is one epoch range of the retention timeline, tagged with the
// age-based irrelevance shared by every event inside it. Lower is
// inclusive, Upper exclusive; a nil bound means unbounded in that
// direction.
type Bucket struct {
	Lower          *epoch.Epoch
	Upper          *epoch.Epoch
	AgeIrrelevance int
}

// PlanBuckets partitions the timeline into geometrically widening
// buckets, newest first.
//
// Boundaries are placed at ages 0, 1, 3, 7, ... epochs before current
// (AgeForIrrelevance at each integer budget) for as long as the age is
// strictly inside the span between first and current. The resulting
// buckets cover the whole line with no gaps or overlaps: the newest
// bucket is unbounded above, the oldest unbounded below, and the bucket
// count is O(log span) regardless of event volume, which bounds every
// downstream query count.
func PlanBuckets(first, current epoch.Epoch) []Bucket {
	span := int64(current - first)

	// Boundaries from most recent outward; the open ends are nil.
	boundaries := []*epoch.Epoch{nil}
	for budget := 0; ; budget++ {
		age := irrelevance.AgeForIrrelevance(budget)
		if age >= span {
			break
		}
		b := current - epoch.Epoch(age)
		boundaries = append(boundaries, &b)
	}
	boundaries = append(boundaries, nil)

	// Because generation proceeds newest-to-oldest, each consecutive
	// pair comes out as (upper, lower).
	buckets := make([]Bucket, 0, len(boundaries)-1)
	for i := 1; i < len(boundaries); i++ {
		buckets = append(buckets, Bucket{
			Lower:          boundaries[i],
			Upper:          boundaries[i-1],
			AgeIrrelevance: i - 1,
		})
	}
	return buckets
}
