package reconcile

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrisonrobin/taskslot/pkg/engine"
	"github.com/harrisonrobin/taskslot/pkg/model"
)

// snapshot is everything a cycle reads up front.
type snapshot struct {
	tasks             []model.Task
	mappings          []engine.CalendarMapping
	busyCalendars     []string
	defaultCalendarID string
}

func (s snapshot) taskIndex() map[string]model.Task {
	idx := make(map[string]model.Task, len(s.tasks))
	for _, t := range s.tasks {
		idx[t.UID] = t
	}
	return idx
}

// Plan is the outcome of ranking and placement without any side effect.
type Plan struct {
	GeneratedAt time.Time
	Ranked      []engine.RankedTask
	Slots       []engine.FreeSlot
	Placements  []engine.Placement
	// Unplaced are ranked tasks that fit no slot, in rank order.
	Unplaced []engine.RankedTask
	// RescheduleCounts is the attempt number each task's events are created with.
	RescheduleCounts map[string]int
}

func (o *Orchestrator) fetch(ctx context.Context) (snapshot, error) {
	var snap snapshot
	var defaultID string
	var hasDefault bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tasks, err := o.Tasks.ListTasks(gctx)
		if err != nil {
			return fmt.Errorf("fetch tasks: %w", err)
		}
		snap.tasks = tasks
		return nil
	})
	g.Go(func() error {
		m, err := o.Ledger.CalendarMappings(gctx)
		if err != nil {
			return fmt.Errorf("fetch calendar mappings: %w", err)
		}
		snap.mappings = m
		return nil
	})
	g.Go(func() error {
		ids, err := o.Ledger.BusyCalendarIDs(gctx)
		if err != nil {
			return fmt.Errorf("fetch busy calendars: %w", err)
		}
		snap.busyCalendars = ids
		return nil
	})
	g.Go(func() error {
		id, ok, err := o.Ledger.DefaultCalendarID(gctx)
		if err != nil {
			return fmt.Errorf("fetch default calendar: %w", err)
		}
		defaultID, hasDefault = id, ok
		return nil
	})
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}

	snap.defaultCalendarID = o.fallback
	if hasDefault && defaultID != "" {
		snap.defaultCalendarID = defaultID
	}
	return snap, nil
}

// Plan computes what the next cycle would place, without taking the lease
// or changing anything.
func (o *Orchestrator) Plan(ctx context.Context) (*Plan, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	snap, err := o.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return o.buildPlan(ctx, o.now(), snap)
}

func (o *Orchestrator) now() time.Time {
	return o.clock.Now().In(o.cfg.Location())
}

// buildPlan ranks and places eligible tasks. Only rows currently scheduled are
// excluded: rescheduled rows compete again, carrying their reschedule boost.
func (o *Orchestrator) buildPlan(ctx context.Context, now time.Time, snap snapshot) (*Plan, error) {
	scheduled, err := o.Ledger.ScheduledTaskUIDs(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := o.Ledger.RescheduleCounts(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []model.Task
	for _, t := range snap.tasks {
		if t.Eligible() && !scheduled[t.UID] {
			candidates = append(candidates, t)
		}
	}

	plan := &Plan{GeneratedAt: now, RescheduleCounts: counts}
	plan.Ranked = engine.RankTasks(candidates, o.cfg.EngineWeights(), counts, o.cfg.ProjectImportance, now)
	o.cfg.EngineDurationMatrix().EstimateAll(plan.Ranked)
	if len(plan.Ranked) == 0 {
		return plan, nil
	}

	calendars := snap.busyCalendars
	if len(calendars) == 0 {
		calendars = []string{FallbackCalendarID}
	}
	// Slots are found for whole days, so busy time is queried to the end of
	// the horizon's last day.
	until := now.Add(o.cfg.Horizon())
	busyEnd := time.Date(until.Year(), until.Month(), until.Day()+1, 0, 0, 0, 0, until.Location())
	busy, err := o.Calendar.Busy(ctx, calendars, now, busyEnd)
	if err != nil {
		return nil, err
	}
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	busy = append(busy, engine.BusyPeriod{Start: startOfDay, End: now})

	plan.Slots, err = engine.FindSlots(now, until, busy, o.cfg.WeeklyWindows(), o.cfg.MinSlotMinutes)
	if err != nil {
		return nil, err
	}
	plan.Placements = engine.ScheduleTasks(plan.Ranked, plan.Slots, snap.mappings, snap.defaultCalendarID,
		o.cfg.EngineBreakRules(), o.cfg.EnginePeakHours())

	placed := make(map[string]bool, len(plan.Placements))
	for _, p := range plan.Placements {
		placed[p.Task.UID] = true
	}
	for _, rt := range plan.Ranked {
		if !placed[rt.Task.UID] {
			plan.Unplaced = append(plan.Unplaced, rt)
		}
	}
	return plan, nil
}
