// Package journal provides durable persistence for observed activity
// events backed by SQLite, with retention pruning for long-running
// deployments.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Session-Vigil/Sessionvigil/internal/domain/activity"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	// defaultBusyTimeout bounds how long a statement waits on a locked
	// database before failing.
	defaultBusyTimeout = 5 * time.Second
)

// schema is the activity journal table. Timestamps are stored as
// millisecond epochs so rows sort and prune without parsing.
const schema = `
CREATE TABLE IF NOT EXISTS activity_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT    NOT NULL,
	source      TEXT    NOT NULL DEFAULT '',
	observed_at INTEGER NOT NULL,
	meta        TEXT
);
CREATE INDEX IF NOT EXISTS idx_activity_events_observed_at
	ON activity_events (observed_at);
`

// SQLiteConfig holds configuration for the SQLite journal store.
type SQLiteConfig struct {
	// Path is the database file location. The parent directory is
	// created if it does not exist.
	Path string
	// BusyTimeout is how long statements wait on a locked database
	// (default 5s).
	BusyTimeout time.Duration
}

// SQLiteStore journals activity events to a SQLite database. It
// implements both the sink and reader ports: batches are written in a
// single transaction, and recent events are served newest first.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore opens (or creates) the journal database at cfg.Path,
// applies pragmas, and ensures the schema exists.
func NewSQLiteStore(cfg SQLiteConfig, logger *slog.Logger) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = defaultBusyTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	// SQLite supports a single writer; more connections just contend.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// WriteBatch inserts all events in one transaction. A failure rolls the
// whole batch back; callers treat the batch as abandoned.
func (s *SQLiteStore) WriteBatch(ctx context.Context, events []activity.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO activity_events (kind, source, observed_at, meta) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare journal insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ev := range events {
		meta := sql.NullString{}
		if len(ev.Meta) > 0 {
			data, err := json.Marshal(ev.Meta)
			if err != nil {
				return fmt.Errorf("marshal event meta: %w", err)
			}
			meta = sql.NullString{String: string(data), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx, ev.Kind.String(), ev.Source, ev.At.UnixMilli(), meta); err != nil {
			return fmt.Errorf("insert journal event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit journal batch: %w", err)
	}
	return nil
}

// Recent returns the last n journaled events, newest first. Read
// failures are logged and yield an empty result; rows with a kind this
// build does not recognize are skipped.
func (s *SQLiteStore) Recent(n int) []activity.Event {
	if n <= 0 {
		return nil
	}

	rows, err := s.db.Query(
		"SELECT kind, source, observed_at, meta FROM activity_events ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		s.logger.Error("journal read failed", "error", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var events []activity.Event
	for rows.Next() {
		var (
			kindStr string
			source  string
			ms      int64
			meta    sql.NullString
		)
		if err := rows.Scan(&kindStr, &source, &ms, &meta); err != nil {
			s.logger.Error("journal row scan failed", "error", err)
			return events
		}

		kind, err := activity.ParseKind(kindStr)
		if err != nil {
			s.logger.Warn("journal row has unknown kind", "kind", kindStr)
			continue
		}

		ev := activity.Event{
			Kind:   kind,
			Source: source,
			At:     time.UnixMilli(ms).UTC(),
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &ev.Meta); err != nil {
				s.logger.Warn("journal row has malformed meta", "error", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("journal read failed", "error", err)
	}

	return events
}

// Count returns the number of journaled events.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM activity_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal events: %w", err)
	}
	return n, nil
}

// PruneBefore deletes events observed before the cutoff and returns the
// number of rows removed.
func (s *SQLiteStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM activity_events WHERE observed_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return deleted, nil
}

// StartRetention launches a goroutine that prunes events older than
// maxAge on the given interval until the context is cancelled. It
// returns immediately when maxAge or interval is not positive.
func (s *SQLiteStore) StartRetention(ctx context.Context, maxAge, interval time.Duration) {
	if maxAge <= 0 || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.PruneBefore(ctx, time.Now().Add(-maxAge))
				if err != nil {
					s.logger.Error("journal retention prune failed", "error", err)
					continue
				}
				if deleted > 0 {
					s.logger.Info("journal retention prune completed", "deleted", deleted)
				}
			}
		}
	}()
}

// Close closes the underlying database. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Compile-time interface verification.
var (
	_ activity.ActivitySink   = (*SQLiteStore)(nil)
	_ activity.ActivityReader = (*SQLiteStore)(nil)
)
