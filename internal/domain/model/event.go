// Package model contains domain models passed between layers.
package model

import "time"

// Event represents a stored error-report event.
// Fields mirror the OpenAPI schema for /api/events plus the retention
// bookkeeping assigned at digest time.
type Event struct {
	ID        string    // unique id for idempotency
	ProjectID string    // owning project
	IssueID   string    // grouping key (issue fingerprint)
	Message   string    // human-readable summary
	Level     string    // severity, e.g. "error", "warning"
	Timestamp time.Time // client-supplied event time (informational only)

	// ServerSideTimestamp is assigned when the event is digested and is
	// the only time used for age/epoch arithmetic.
	ServerSideTimestamp time.Time

	// ItemIrrelevance is fixed at digest time from the issue's event
	// count and a random draw; it never changes afterwards.
	ItemIrrelevance int

	// NeverEvict permanently protects the event from eviction. The
	// digest path sets it for an issue's first (representative) event.
	NeverEvict bool
}

// Issue groups events sharing a fingerprint within a project.
// EventCount counts events ever digested for the issue; it is not
// decremented when events are evicted.
type Issue struct {
	ID         string
	ProjectID  string
	Title      string
	EventCount int64
}

// Project carries the per-project retention configuration.
type Project struct {
	ID            string
	Name          string
	MaxEventCount int64 // retention capacity; eviction triggers strictly above this
	CreatedAt     time.Time
}

// ProjectStats is the read shape returned by project stats queries.
// LastEviction is filled in by the service from its in-process record;
// it is nil when no eviction has run since startup.
type ProjectStats struct {
	ProjectID     string           `json:"project_id"`
	StoredEvents  int64            `json:"stored_events"`
	Issues        int64            `json:"issues"`
	MaxEventCount int64            `json:"max_event_count"`
	LastEviction  *EvictionOutcome `json:"last_eviction,omitempty"`
}

// EvictionOutcome summarizes the most recent eviction run for a project.
type EvictionOutcome struct {
	At         time.Time `json:"at"`
	Deleted    int64     `json:"deleted"`
	FinalCount int64     `json:"final_count"`
	Exhausted  bool      `json:"exhausted"`
}
