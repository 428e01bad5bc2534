// Package retention implements the eviction engine that keeps the
// number of stored events per project bounded.
//
// When a project's stored event count exceeds its configured capacity,
// the engine deletes events until the count reaches a hysteresis target
// of 95% of capacity. Deletions are spread across time and importance:
// the timeline is partitioned into geometrically widening epoch buckets
// (each carrying an age-based irrelevance), a single survey phase reads
// the maximum item irrelevance per bucket, and a sweep phase lowers a
// combined-irrelevance threshold one step at a time, bulk-deleting
// everything strictly above it, newest buckets first.
//
// The engine does bounded, batched work: O(log span) aggregate queries
// in the survey phase and a handful of set-based deletes in the sweep.
// It never touches events with NeverEvict set, takes no locks, and runs
// no transactions of its own; callers are responsible for serializing
// runs per project (see app's single-flight guard).
package retention
