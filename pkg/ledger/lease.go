package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harrisonrobin/taskslot/pkg/lease"
)

const syncStateID = 1

var _ lease.Store = (*Store)(nil)

// UpdateLease runs fn against the sync_state row inside an immediate transaction.
func (s *Store) UpdateLease(ctx context.Context, fn func(cur lease.State, found bool) (lease.State, bool)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lease transaction: %w", err)
	}
	defer tx.Rollback()

	cur, found, err := readLease(ctx, tx)
	if err != nil {
		return err
	}
	next, write := fn(cur, found)
	if !write {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO sync_state (id, last_sync_at, sync_in_progress, sync_started_at, generation)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  last_sync_at=excluded.last_sync_at,
  sync_in_progress=excluded.sync_in_progress,
  sync_started_at=excluded.sync_started_at,
  generation=excluded.generation;`,
		syncStateID, unixOrNull(next.LastCompletedAt), next.InProgress, unixOrNull(next.StartedAt), next.Generation)
	if err != nil {
		return fmt.Errorf("write sync state: %w", err)
	}
	return tx.Commit()
}

// LeaseState returns the persisted lease without modifying it.
func (s *Store) LeaseState(ctx context.Context) (lease.State, bool, error) {
	return readLease(ctx, s.db)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readLease(ctx context.Context, q queryRower) (lease.State, bool, error) {
	var (
		st              lease.State
		lastSync, start sql.NullInt64
	)
	err := q.QueryRowContext(ctx,
		`SELECT last_sync_at, sync_in_progress, sync_started_at, generation FROM sync_state WHERE id = ?`, syncStateID).
		Scan(&lastSync, &st.InProgress, &start, &st.Generation)
	if errors.Is(err, sql.ErrNoRows) {
		return lease.State{}, false, nil
	}
	if err != nil {
		return lease.State{}, false, fmt.Errorf("read sync state: %w", err)
	}
	st.LastCompletedAt = timeOrZero(lastSync)
	st.StartedAt = timeOrZero(start)
	return st, true, nil
}
