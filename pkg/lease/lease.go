// Package lease guards the reconciliation cycle with a persisted,
// time-bounded mutual-exclusion flag. A holder that crashes leaves the flag
// set; the next Acquire after the timeout reclaims it.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskslot/pkg/clock"
	"github.com/harrisonrobin/taskslot/pkg/logging"
)

// ErrHeld is returned by Manager.Run when another holder owns the lease.
var ErrHeld = errors.New("sync already in progress")

// State is the persisted lease row.
type State struct {
	InProgress      bool      `json:"in_progress"`
	StartedAt       time.Time `json:"started_at"`
	LastCompletedAt time.Time `json:"last_completed_at"`
	Generation      int64     `json:"generation"`
}

// Store performs an atomic read-modify-write of the lease row. fn sees the
// current state (found is false when no row exists) and returns the next
// state plus whether to persist it.
type Store interface {
	UpdateLease(ctx context.Context, fn func(cur State, found bool) (next State, write bool)) error
	LeaseState(ctx context.Context) (State, bool, error)
}

// Token identifies one acquisition.
type Token struct {
	Generation int64
	StartedAt  time.Time
}

type Manager struct {
	store   Store
	clock   clock.Clock
	timeout time.Duration
	log     *zap.Logger
}

func NewManager(store Store, c clock.Clock, timeout time.Duration, log *zap.Logger) *Manager {
	if c == nil {
		c = clock.System{}
	}
	return &Manager{store: store, clock: c, timeout: timeout, log: logging.OrNop(log)}
}

// Acquire takes the lease if it is free or abandoned. ok is false when a
// live holder exists.
func (m *Manager) Acquire(ctx context.Context) (Token, bool, error) {
	now := m.clock.Now()
	var (
		tok      Token
		acquired bool
		stale    *State
	)
	err := m.store.UpdateLease(ctx, func(cur State, found bool) (State, bool) {
		acquired, stale = false, nil
		if found && cur.InProgress {
			if now.Sub(cur.StartedAt) < m.timeout {
				return cur, false
			}
			abandoned := cur
			stale = &abandoned
			cur.LastCompletedAt = now
		}
		next := State{
			InProgress:      true,
			StartedAt:       now,
			LastCompletedAt: cur.LastCompletedAt,
			Generation:      cur.Generation + 1,
		}
		tok = Token{Generation: next.Generation, StartedAt: now}
		acquired = true
		return next, true
	})
	if err != nil {
		return Token{}, false, fmt.Errorf("failed to acquire sync lease: %w", err)
	}
	if stale != nil {
		m.log.Warn("reclaimed abandoned sync lease",
			zap.Time("started_at", stale.StartedAt),
			zap.Int64("generation", stale.Generation),
			zap.Duration("timeout", m.timeout))
	}
	return tok, acquired, nil
}

// Release clears the lease held by tok. A lease reclaimed by someone else
// since tok was issued is left alone.
func (m *Manager) Release(ctx context.Context, tok Token) error {
	now := m.clock.Now()
	released := false
	var current int64
	err := m.store.UpdateLease(ctx, func(cur State, found bool) (State, bool) {
		released, current = false, cur.Generation
		if !found || !cur.InProgress || cur.Generation != tok.Generation {
			return cur, false
		}
		cur.InProgress = false
		cur.LastCompletedAt = now
		released = true
		return cur, true
	})
	if err != nil {
		return fmt.Errorf("failed to release sync lease: %w", err)
	}
	if !released {
		m.log.Warn("sync lease no longer owned, not releasing",
			zap.Int64("generation", tok.Generation),
			zap.Int64("current_generation", current))
	}
	return nil
}

// Status returns the persisted lease state; the zero State when none exists.
func (m *Manager) Status(ctx context.Context) (State, error) {
	st, _, err := m.store.LeaseState(ctx)
	return st, err
}

// Run executes fn while holding the lease and always releases it afterwards,
// using a context detached from ctx's cancellation.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	tok, ok, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	defer func() {
		if err := m.Release(context.WithoutCancel(ctx), tok); err != nil {
			m.log.Error("failed to release sync lease", zap.Error(err))
		}
	}()
	return fn(ctx)
}
