package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kitsupub/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Older databases must
// be removed; history is informational only.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by another version.
var ErrSchemaMismatch = errors.New("history schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Outcome is the final state of a publish attempt.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one recorded publish attempt.
type Entry struct {
	ID          int64
	PublishID   string
	TaskID      string
	TaskPath    string
	Status      string
	Media       string
	PreviewPath string
	PreviewID   string
	CommentID   string
	Outcome     Outcome
	ErrorKind   string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// ListOptions filters List. A zero Limit returns every entry.
type ListOptions struct {
	TaskID string
	Limit  int
}

// Store persists publish history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the history database configured in paths.history_db.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("history requires config")
	}
	return OpenPath(cfg.Paths.HistoryDB)
}

// OpenPath opens or creates the database at path.
func OpenPath(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record inserts e, filling ID on success.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e == nil || strings.TrimSpace(e.PublishID) == "" || strings.TrimSpace(e.TaskID) == "" {
		return errors.New("history entry requires publish and task ids")
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeFailed
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, `INSERT INTO publishes
			(publish_id, task_id, task_path, status, media, preview_path, preview_id, comment_id, outcome, error_kind, error, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.PublishID, e.TaskID, e.TaskPath, e.Status, e.Media, e.PreviewPath, e.PreviewID, e.CommentID,
			string(e.Outcome), e.ErrorKind, e.Error, formatTime(e.StartedAt), formatTime(e.FinishedAt))
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// List returns entries newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	query := `SELECT id, publish_id, task_id, task_path, status, media, preview_path, preview_id, comment_id,
		outcome, error_kind, error, started_at, finished_at FROM publishes`
	var args []any
	if opts.TaskID != "" {
		query += " WHERE task_id = ?"
		args = append(args, opts.TaskID)
	}
	query += " ORDER BY finished_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			outcome           string
			started, finished string
		)
		if err := rows.Scan(&e.ID, &e.PublishID, &e.TaskID, &e.TaskPath, &e.Status, &e.Media, &e.PreviewPath,
			&e.PreviewID, &e.CommentID, &outcome, &e.ErrorKind, &e.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Outcome = Outcome(outcome)
		e.StartedAt = parseTime(started)
		e.FinishedAt = parseTime(finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune removes entries finished before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, "DELETE FROM publishes WHERE finished_at < ?", formatTime(cutoff))
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
