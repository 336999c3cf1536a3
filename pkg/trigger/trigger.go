// Package trigger runs reconciliation cycles on a fixed interval.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskslot/pkg/logging"
	"github.com/harrisonrobin/taskslot/pkg/reconcile"
)

// Runner is satisfied by *reconcile.Orchestrator.
type Runner interface {
	RunCycle(ctx context.Context) reconcile.Result
}

type Scheduler struct {
	runner Runner
	log    *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	last    *reconcile.Result
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

func New(runner Runner, log *zap.Logger) *Scheduler {
	return &Scheduler{runner: runner, log: logging.OrNop(log)}
}

// Start schedules a cycle every interval. A tick that arrives while the
// previous cycle is still running is skipped.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval < time.Second {
		return fmt.Errorf("sync interval %s is below one second", interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}

	logger := cronLogger{s.log.Sugar()}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.tick)
	if err != nil {
		s.cancel()
		return fmt.Errorf("schedule sync: %w", err)
	}
	s.entry = id
	s.cron.Start()
	s.started = true
	s.log.Info("sync scheduler started", zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	s.RunNow(ctx)
}

// RunNow runs one cycle immediately and records its result.
func (s *Scheduler) RunNow(ctx context.Context) reconcile.Result {
	res := s.runner.RunCycle(ctx)
	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	return res
}

// Stop stops scheduling, cancels the running cycle and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	done := s.cron.Stop()
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	select {
	case <-done.Done():
		s.log.Info("sync scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastRun returns the result of the most recent cycle.
func (s *Scheduler) LastRun() (reconcile.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return reconcile.Result{}, false
	}
	return *s.last, true
}

// NextRun returns when the next cycle is due, or the zero time when stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
