// Package ledger persists what the reconciler has done: one row per task it
// has ever scheduled, calendar routing, busy calendars and the sync lease.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/harrisonrobin/taskslot/pkg/clock"
	"github.com/harrisonrobin/taskslot/pkg/logging"
)

type Store struct {
	db    *sql.DB
	clock clock.Clock
	log   *zap.Logger
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string, c clock.Clock, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers, so the lease read-modify-write is atomic.
	db.SetMaxOpenConns(1)

	if c == nil {
		c = clock.System{}
	}
	s := &Store{db: db, clock: c, log: logging.OrNop(log)}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS synced_tasks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  task_uid TEXT NOT NULL UNIQUE,
  clean_name TEXT NOT NULL,
  current_emoji TEXT,
  calendar_event_id TEXT,
  break_event_id TEXT,
  calendar_id TEXT,
  scheduled_start INTEGER,
  scheduled_end INTEGER,
  status TEXT NOT NULL DEFAULT 'pending',
  reschedule_count INTEGER NOT NULL DEFAULT 0,
  tududi_status TEXT,
  last_checked_at INTEGER,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS synced_tasks_status ON synced_tasks(status);

CREATE TABLE IF NOT EXISTS sync_state (
  id INTEGER PRIMARY KEY,
  last_sync_at INTEGER,
  sync_in_progress INTEGER NOT NULL DEFAULT 0,
  sync_started_at INTEGER,
  generation INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS calendar_mappings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  project_uid TEXT NOT NULL UNIQUE,
  project_name TEXT NOT NULL,
  calendar_id TEXT NOT NULL,
  calendar_name TEXT NOT NULL,
  is_default INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS busy_calendars (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  calendar_id TEXT NOT NULL UNIQUE,
  calendar_name TEXT NOT NULL,
  enabled INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

func (s *Store) now() int64 {
	return s.clock.Now().Unix()
}

func unixOrNull(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timeOrZero(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
