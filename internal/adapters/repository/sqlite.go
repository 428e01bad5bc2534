package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	epoch "github.com/okian/cull/internal/domain/epoch"
	"github.com/okian/cull/internal/domain/model"
	"github.com/okian/cull/pkg/metrics"
)

//go:embed schema.sql
var schemaSQL string

// Default store configuration constants.
const (
	defaultBusyTimeout = 5 * time.Second
)

// SQLiteStore implements EventStore on a single SQLite database.
// WAL mode allows concurrent reads during writes; the connection pool
// is capped at one writer, which is all SQLite supports anyway and
// avoids SQLITE_BUSY under concurrent digests.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
}

// SQLiteOption applies a configuration option to the SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithBusyTimeout sets the SQLite busy timeout applied at open.
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// Open creates or opens a SQLite database at the given path and applies
// pragmas and the schema. It is idempotent; safe to call on an existing
// database file. Use ":memory:" for an ephemeral store in tests.
func Open(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{
		busyTimeout: defaultBusyTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// Single writer; keeps one connection ready.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s.db = db
	if err := s.applyPragmas(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return s, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	return nil
}

// CreateProject registers a project.
func (s *SQLiteStore) CreateProject(ctx context.Context, p model.Project) error {
	defer observeExec(time.Now())

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, max_event_count, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, p.ID, p.Name, p.MaxEventCount, p.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("project %s: %w", p.ID, ErrAlreadyExists)
	}
	return nil
}

// Project returns a project by id.
func (s *SQLiteStore) Project(ctx context.Context, id string) (model.Project, error) {
	defer observeQuery(time.Now())

	var p model.Project
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, max_event_count, created_at FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.MaxEventCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("get project: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	return p, nil
}

// Projects lists all registered projects.
func (s *SQLiteStore) Projects(ctx context.Context) ([]model.Project, error) {
	defer observeQuery(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, max_event_count, created_at FROM projects ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.Name, &p.MaxEventCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// IssueEventCount returns the issue's digested event count.
func (s *SQLiteStore) IssueEventCount(ctx context.Context, projectID, issueID string) (int64, error) {
	defer observeQuery(time.Now())

	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT event_count FROM issues WHERE project_id = ? AND id = ?
	`, projectID, issueID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("issue event count: %w", err)
	}
	return count, nil
}

// InsertEvent stores an event and bumps its issue's digested count in
// one transaction.
func (s *SQLiteStore) InsertEvent(ctx context.Context, ev model.Event) error {
	defer observeExec(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var eventTS any
	if !ev.Timestamp.IsZero() {
		eventTS = ev.Timestamp.Unix()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events
		(id, project_id, issue_id, message, level, event_timestamp, server_side_timestamp, item_irrelevance, never_evict)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID,
		ev.ProjectID,
		ev.IssueID,
		ev.Message,
		ev.Level,
		eventTS,
		ev.ServerSideTimestamp.Unix(),
		ev.ItemIrrelevance,
		ev.NeverEvict,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO issues (project_id, id, title, event_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(project_id, id) DO UPDATE SET event_count = event_count + 1
	`, ev.ProjectID, ev.IssueID, ev.Message); err != nil {
		return fmt.Errorf("bump issue count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// CountEvents returns the stored event count, protected rows included.
func (s *SQLiteStore) CountEvents(ctx context.Context, projectID string) (int64, error) {
	defer observeQuery(time.Now())

	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events WHERE project_id = ?
	`, projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// OldestEvictable returns the minimum server-side timestamp among
// non-protected events.
func (s *SQLiteStore) OldestEvictable(ctx context.Context, projectID string) (time.Time, bool, error) {
	defer observeQuery(time.Now())

	var oldest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(server_side_timestamp) FROM events
		WHERE project_id = ? AND never_evict = 0
	`, projectID).Scan(&oldest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest evictable: %w", err)
	}
	if !oldest.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(oldest.Int64, 0).UTC(), true, nil
}

// MaxItemIrrelevance returns the maximum item irrelevance among
// non-protected events within the epoch bounds.
func (s *SQLiteStore) MaxItemIrrelevance(ctx context.Context, projectID string, lower, upper *epoch.Epoch) (int, error) {
	defer observeQuery(time.Now())

	query := `
		SELECT MAX(item_irrelevance) FROM events
		WHERE project_id = ? AND never_evict = 0
	`
	args := []any{projectID}
	if lower != nil {
		query += " AND server_side_timestamp >= ?"
		args = append(args, lower.Time().Unix())
	}
	if upper != nil {
		query += " AND server_side_timestamp < ?"
		args = append(args, upper.Time().Unix())
	}

	var maxIrr sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&maxIrr); err != nil {
		return 0, fmt.Errorf("max item irrelevance: %w", err)
	}
	if !maxIrr.Valid {
		return 0, nil
	}
	return int(maxIrr.Int64), nil
}

// DeleteEvictable deletes every non-protected event strictly above the
// irrelevance bound, optionally restricted to rows before the epoch
// upper bound. One set-based statement; no LIMIT.
func (s *SQLiteStore) DeleteEvictable(ctx context.Context, projectID string, irrelevanceGT int, upper *epoch.Epoch) (int64, error) {
	defer observeExec(time.Now())

	query := `
		DELETE FROM events
		WHERE project_id = ? AND never_evict = 0 AND item_irrelevance > ?
	`
	args := []any{projectID, irrelevanceGT}
	if upper != nil {
		query += " AND server_side_timestamp < ?"
		args = append(args, upper.Time().Unix())
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete evictable: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete evictable: %w", err)
	}
	return n, nil
}

// ProjectStats returns stored event and issue counts for a project.
func (s *SQLiteStore) ProjectStats(ctx context.Context, projectID string) (model.ProjectStats, error) {
	defer observeQuery(time.Now())

	p, err := s.Project(ctx, projectID)
	if err != nil {
		return model.ProjectStats{}, err
	}

	stats := model.ProjectStats{ProjectID: projectID, MaxEventCount: p.MaxEventCount}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events WHERE project_id = ?
	`, projectID).Scan(&stats.StoredEvents); err != nil {
		return model.ProjectStats{}, fmt.Errorf("project stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM issues WHERE project_id = ?
	`, projectID).Scan(&stats.Issues); err != nil {
		return model.ProjectStats{}, fmt.Errorf("project stats: %w", err)
	}
	return stats, nil
}

func observeQuery(start time.Time) {
	metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func observeExec(start time.Time) {
	metrics.RecordStoreExecLatency(float64(time.Since(start).Microseconds()) / 1000)
}
