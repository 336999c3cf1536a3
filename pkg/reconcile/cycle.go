package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskslot/pkg/engine"
	"github.com/harrisonrobin/taskslot/pkg/lease"
	"github.com/harrisonrobin/taskslot/pkg/ledger"
	"github.com/harrisonrobin/taskslot/pkg/model"
)

// RunCycle performs one full reconciliation. It never returns an error:
// fatal problems end the cycle early with Success false and the reason in
// Errors, while per-task failures are collected and the cycle carries on.
func (o *Orchestrator) RunCycle(ctx context.Context) (res Result) {
	res = Result{RunID: uuid.NewString(), StartedAt: o.clock.Now(), Errors: []string{}}
	log := o.log.With(zap.String("run_id", res.RunID))
	defer func() { res.FinishedAt = o.clock.Now() }()

	log.Info("starting sync cycle", zap.String("phase", "locking"))
	tok, ok, err := o.Lease.Acquire(ctx)
	if err != nil {
		log.Error("could not acquire lease", zap.Error(err))
		res.Errors = append(res.Errors, fmt.Sprintf("acquire lease: %v", err))
		return res
	}
	if !ok {
		log.Info("sync already in progress, skipping cycle")
		res.Contended = true
		res.Errors = append(res.Errors, lease.ErrHeld.Error())
		return res
	}
	defer func() {
		log.Debug("releasing lease", zap.String("phase", "releasing"))
		if err := o.Lease.Release(context.WithoutCancel(ctx), tok); err != nil {
			log.Error("could not release lease", zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("release lease: %v", err))
		}
	}()

	if err := o.cycle(ctx, log, &res); err != nil {
		log.Error("sync cycle failed", zap.Error(err))
		res.Errors = append(res.Errors, fmt.Sprintf("sync cycle failed: %v", err))
		return res
	}
	res.Success = true
	log.Info("sync cycle complete",
		zap.Int("scheduled", res.Scheduled),
		zap.Int("rescheduled", res.Rescheduled),
		zap.Int("completed", res.Completed),
		zap.Int("errors", len(res.Errors)))
	return res
}

func (o *Orchestrator) cycle(ctx context.Context, log *zap.Logger, res *Result) error {
	if err := o.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	now := o.now()

	log.Debug("fetching", zap.String("phase", "fetching"))
	snap, err := o.fetch(ctx)
	if err != nil {
		return err
	}
	tasks := snap.taskIndex()
	log.Info("fetched", zap.Int("tasks", len(snap.tasks)), zap.Int("mappings", len(snap.mappings)),
		zap.Int("busy_calendars", len(snap.busyCalendars)), zap.String("default_calendar", snap.defaultCalendarID))

	if err := o.reconcileCompleted(ctx, log.With(zap.String("phase", "completion")), tasks, res); err != nil {
		return err
	}
	if err := o.reconcileOverdue(ctx, log.With(zap.String("phase", "overdue")), now, tasks, res); err != nil {
		return err
	}

	log.Debug("planning", zap.String("phase", "placing"))
	plan, err := o.buildPlan(ctx, now, snap)
	if err != nil {
		return err
	}
	log.Info("planned", zap.Int("ranked", len(plan.Ranked)), zap.Int("slots", len(plan.Slots)),
		zap.Int("placements", len(plan.Placements)))

	for _, p := range plan.Placements {
		l := log.With(zap.String("phase", "materialize"), zap.String("task_uid", p.Task.UID),
			zap.String("calendar_id", p.CalendarID))
		if err := o.materialize(ctx, l, p, plan.RescheduleCounts[p.Task.UID]); err != nil {
			l.Warn("failed to schedule task", zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("failed to schedule task %s: %v", p.Task.UID, err))
			continue
		}
		res.Scheduled++
	}

	o.markPastDue(ctx, log.With(zap.String("phase", "past_due")), now, plan.Unplaced)

	if o.Colors != nil {
		if err := o.Colors.Save(); err != nil {
			log.Warn("could not save project colors", zap.Error(err))
		}
	}
	return nil
}

// deleteEvents removes a row's task and break events. Failures are logged only.
func (o *Orchestrator) deleteEvents(ctx context.Context, log *zap.Logger, rec ledger.Record) {
	if rec.CalendarID == "" {
		return
	}
	for _, id := range []string{rec.CalendarEventID, rec.BreakEventID} {
		if id == "" {
			continue
		}
		if err := o.Calendar.DeleteEvent(ctx, rec.CalendarID, id); err != nil {
			log.Warn("could not delete event", zap.String("event_id", id), zap.Error(err))
		}
	}
}

func (o *Orchestrator) reconcileCompleted(ctx context.Context, log *zap.Logger, tasks map[string]model.Task, res *Result) error {
	active, err := o.Ledger.ActiveRecords(ctx)
	if err != nil {
		return err
	}
	for _, rec := range active {
		task, ok := tasks[rec.TaskUID]
		if !ok || !task.Status.Terminal() {
			continue
		}
		l := log.With(zap.String("task_uid", rec.TaskUID))
		l.Info("task finished, cleaning up", zap.String("task_status", string(task.Status)))
		o.deleteEvents(ctx, l, rec)

		if rec.CleanName != "" && task.Name != rec.CleanName {
			name := rec.CleanName
			if _, err := o.Tasks.UpdateTask(ctx, rec.TaskUID, model.TaskUpdate{Name: &name}); err != nil {
				l.Warn("could not restore task name", zap.Error(err))
				res.Errors = append(res.Errors, fmt.Sprintf("failed to restore name of task %s: %v", rec.TaskUID, err))
				continue
			}
		}
		if err := o.Ledger.MarkCompleted(ctx, rec.TaskUID); err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Completed++
	}
	return nil
}

func (o *Orchestrator) reconcileOverdue(ctx context.Context, log *zap.Logger, now time.Time, tasks map[string]model.Task, res *Result) error {
	overdue, err := o.Ledger.OverdueRecords(ctx, now.Add(-o.cfg.RescheduleTimeout()))
	if err != nil {
		return err
	}
	for _, rec := range overdue {
		task, ok := tasks[rec.TaskUID]
		if !ok || task.Status.Terminal() {
			continue
		}
		l := log.With(zap.String("task_uid", rec.TaskUID))
		l.Info("task overdue, rescheduling", zap.Time("scheduled_end", rec.ScheduledEnd),
			zap.Int("reschedule_count", rec.RescheduleCount+1))
		o.deleteEvents(ctx, l, rec)

		if err := o.Ledger.MarkRescheduled(ctx, rec.TaskUID, rec.RescheduleCount+1, string(engine.MarkerProblem)); err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Rescheduled++

		name := engine.ApplyMarker(task.Name, engine.MarkerProblem)
		if name != task.Name {
			if _, err := o.Tasks.UpdateTask(ctx, rec.TaskUID, model.TaskUpdate{Name: &name}); err != nil {
				l.Warn("could not mark task as rescheduled", zap.Error(err))
			}
		}
	}
	return nil
}

// materialize creates the events for p, records them and marks the task name.
// Event ids are derived from the task and attempt, so a retry after a partial
// failure finds the events created last time instead of duplicating them.
func (o *Orchestrator) materialize(ctx context.Context, log *zap.Logger, p engine.Placement, attempt int) error {
	clean := engine.StripMarkers(p.Task.Name)

	eventID, err := o.Calendar.CreateEvent(ctx, p.CalendarID, o.taskEvent(p, clean, attempt))
	if err != nil {
		return fmt.Errorf("create task event: %w", err)
	}
	breakID, err := o.Calendar.CreateEvent(ctx, p.CalendarID, o.breakEvent(p, clean, attempt))
	if err != nil {
		return fmt.Errorf("create break event: %w", err)
	}

	err = o.Ledger.RecordScheduled(ctx, ledger.Scheduled{
		TaskUID:         p.Task.UID,
		CleanName:       clean,
		Marker:          string(engine.MarkerScheduled),
		TaskStatus:      string(p.Task.Status),
		CalendarEventID: eventID,
		BreakEventID:    breakID,
		CalendarID:      p.CalendarID,
		Start:           p.EventStart,
		End:             p.EventEnd,
	})
	if err != nil {
		return err
	}

	// The name may have changed earlier in this cycle, so it is always pushed.
	name := engine.ApplyMarker(clean, engine.MarkerScheduled)
	if _, err := o.Tasks.UpdateTask(ctx, p.Task.UID, model.TaskUpdate{Name: &name}); err != nil {
		return fmt.Errorf("update task name: %w", err)
	}
	log.Info("scheduled task", zap.String("event_id", eventID),
		zap.Time("start", p.EventStart), zap.Time("end", p.EventEnd), zap.Bool("peak", p.IsPeakSlot))
	return nil
}

// markPastDue flags unplaced tasks whose due date has passed.
func (o *Orchestrator) markPastDue(ctx context.Context, log *zap.Logger, now time.Time, unplaced []engine.RankedTask) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, rt := range unplaced {
		t := rt.Task
		if t.DueDate == nil {
			continue
		}
		due := t.DueDate.In(now.Location())
		if !time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, now.Location()).Before(today) {
			continue
		}
		name := engine.ApplyMarker(t.Name, engine.MarkerPastDue)
		if name == t.Name {
			continue
		}
		l := log.With(zap.String("task_uid", t.UID))
		if _, err := o.Tasks.UpdateTask(ctx, t.UID, model.TaskUpdate{Name: &name}); err != nil {
			l.Warn("could not mark task past due", zap.Error(err))
			continue
		}
		if err := o.Ledger.SetMarker(ctx, t.UID, string(engine.MarkerPastDue)); err != nil {
			l.Warn("could not record past due marker", zap.Error(err))
		}
	}
}
