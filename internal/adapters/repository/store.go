// Package repository defines the event store contract and its SQLite
// implementation.
package repository

import (
	"context"
	"time"

	epoch "github.com/okian/cull/internal/domain/epoch"
	"github.com/okian/cull/internal/domain/model"
)

// EventStore provides durable storage for projects, issues and events.
// The retention-facing subset (CountEvents, OldestEvictable,
// MaxItemIrrelevance, DeleteEvictable) is consumed through the narrower
// retention.Store interface; everything here operates on sets of rows,
// never on individual rows by position.
type EventStore interface {
	// CreateProject registers a project. Returns ErrAlreadyExists when
	// the id is taken.
	CreateProject(ctx context.Context, p model.Project) error

	// Project returns a project by id, or ErrNotFound.
	Project(ctx context.Context, id string) (model.Project, error)

	// Projects lists all registered projects.
	Projects(ctx context.Context) ([]model.Project, error)

	// IssueEventCount returns how many events have ever been digested
	// for the issue; 0 when the issue is unknown.
	IssueEventCount(ctx context.Context, projectID, issueID string) (int64, error)

	// InsertEvent stores an event and bumps its issue's digested count
	// in one transaction, creating the issue row on first sight.
	InsertEvent(ctx context.Context, ev model.Event) error

	// CountEvents returns the number of stored events for the project,
	// protected ones included.
	CountEvents(ctx context.Context, projectID string) (int64, error)

	// OldestEvictable returns the minimum server-side timestamp among
	// non-protected events; ok is false when none exist.
	OldestEvictable(ctx context.Context, projectID string) (time.Time, bool, error)

	// MaxItemIrrelevance returns the maximum item irrelevance among
	// non-protected events within the epoch bounds (lower inclusive,
	// upper exclusive, nil unbounded); 0 when no row matches.
	MaxItemIrrelevance(ctx context.Context, projectID string, lower, upper *epoch.Epoch) (int, error)

	// DeleteEvictable deletes, in a single statement, every
	// non-protected event with item irrelevance strictly greater than
	// irrelevanceGT and, when upper is non-nil, a server-side timestamp
	// before upper's boundary instant. Returns rows deleted.
	DeleteEvictable(ctx context.Context, projectID string, irrelevanceGT int, upper *epoch.Epoch) (int64, error)

	// ProjectStats returns stored event and issue counts for a project.
	ProjectStats(ctx context.Context, projectID string) (model.ProjectStats, error)

	// Close releases the underlying database handle.
	Close() error
}
