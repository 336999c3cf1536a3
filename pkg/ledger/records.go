package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a ledger row.
type Status string

const (
	StatusPending     Status = "pending"
	StatusScheduled   Status = "scheduled"
	StatusCompleted   Status = "completed"
	StatusRescheduled Status = "rescheduled"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Record is what the reconciler knows about one task.
type Record struct {
	TaskUID         string    `json:"task_uid"`
	CleanName       string    `json:"clean_name"`
	Marker          string    `json:"marker,omitempty"`
	CalendarEventID string    `json:"calendar_event_id,omitempty"`
	BreakEventID    string    `json:"break_event_id,omitempty"`
	CalendarID      string    `json:"calendar_id,omitempty"`
	ScheduledStart  time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    time.Time `json:"scheduled_end,omitempty"`
	Status          Status    `json:"status"`
	RescheduleCount int       `json:"reschedule_count"`
	TaskStatus      string    `json:"task_status,omitempty"`
	LastCheckedAt   time.Time `json:"last_checked_at,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Scheduled describes a successful placement to persist.
type Scheduled struct {
	TaskUID         string
	CleanName       string
	Marker          string
	TaskStatus      string
	CalendarEventID string
	BreakEventID    string
	CalendarID      string
	Start           time.Time
	End             time.Time
}

const recordColumns = `task_uid, clean_name, current_emoji, calendar_event_id, break_event_id, calendar_id,
  scheduled_start, scheduled_end, status, reschedule_count, tududi_status, last_checked_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r                               Record
		marker, eventID, breakID, calID sql.NullString
		taskStatus                      sql.NullString
		start, end, checked             sql.NullInt64
		created, updated                int64
		status                          string
	)
	if err := row.Scan(&r.TaskUID, &r.CleanName, &marker, &eventID, &breakID, &calID,
		&start, &end, &status, &r.RescheduleCount, &taskStatus, &checked, &created, &updated); err != nil {
		return Record{}, err
	}
	r.Marker = marker.String
	r.CalendarEventID = eventID.String
	r.BreakEventID = breakID.String
	r.CalendarID = calID.String
	r.ScheduledStart = timeOrZero(start)
	r.ScheduledEnd = timeOrZero(end)
	r.Status = Status(status)
	r.TaskStatus = taskStatus.String
	r.LastCheckedAt = timeOrZero(checked)
	r.CreatedAt = time.Unix(created, 0).UTC()
	r.UpdatedAt = time.Unix(updated, 0).UTC()
	return r, nil
}

func (s *Store) queryRecords(ctx context.Context, where string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM synced_tasks `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the row for taskUID; ok is false when none exists.
func (s *Store) Get(ctx context.Context, taskUID string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM synced_tasks WHERE task_uid = ?`, taskUID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get synced task %s: %w", taskUID, err)
	}
	return r, true, nil
}

// ActiveRecords returns rows in scheduled or rescheduled state.
func (s *Store) ActiveRecords(ctx context.Context) ([]Record, error) {
	recs, err := s.queryRecords(ctx, `WHERE status IN (?, ?) ORDER BY id`, StatusScheduled, StatusRescheduled)
	if err != nil {
		return nil, fmt.Errorf("list active synced tasks: %w", err)
	}
	return recs, nil
}

// OverdueRecords returns scheduled rows whose event ended before cutoff.
func (s *Store) OverdueRecords(ctx context.Context, cutoff time.Time) ([]Record, error) {
	recs, err := s.queryRecords(ctx, `WHERE status = ? AND scheduled_end IS NOT NULL AND scheduled_end < ? ORDER BY id`,
		StatusScheduled, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("list overdue synced tasks: %w", err)
	}
	return recs, nil
}

// ScheduledTaskUIDs returns the uids of rows currently in scheduled state.
func (s *Store) ScheduledTaskUIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_uid FROM synced_tasks WHERE status = ?`, StatusScheduled)
	if err != nil {
		return nil, fmt.Errorf("list scheduled task uids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out[uid] = true
	}
	return out, rows.Err()
}

// RescheduleCounts maps task uid to its reschedule count for every row with a non-zero count.
func (s *Store) RescheduleCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_uid, reschedule_count FROM synced_tasks WHERE reschedule_count > 0`)
	if err != nil {
		return nil, fmt.Errorf("list reschedule counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			uid string
			n   int
		)
		if err := rows.Scan(&uid, &n); err != nil {
			return nil, err
		}
		out[uid] = n
	}
	return out, rows.Err()
}

// RecordScheduled upserts the row for a placed task. The reschedule count is preserved.
func (s *Store) RecordScheduled(ctx context.Context, sc Scheduled) error {
	if sc.CalendarEventID == "" || sc.BreakEventID == "" {
		return errors.New("record scheduled: both event ids are required")
	}
	now := s.now()
	const stmt = `
INSERT INTO synced_tasks (task_uid, clean_name, current_emoji, calendar_event_id, break_event_id, calendar_id,
  scheduled_start, scheduled_end, status, reschedule_count, tududi_status, last_checked_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
ON CONFLICT(task_uid) DO UPDATE SET
  clean_name=excluded.clean_name,
  current_emoji=excluded.current_emoji,
  calendar_event_id=excluded.calendar_event_id,
  break_event_id=excluded.break_event_id,
  calendar_id=excluded.calendar_id,
  scheduled_start=excluded.scheduled_start,
  scheduled_end=excluded.scheduled_end,
  status=excluded.status,
  tududi_status=excluded.tududi_status,
  last_checked_at=excluded.last_checked_at,
  updated_at=excluded.updated_at;
`
	_, err := s.db.ExecContext(ctx, stmt,
		sc.TaskUID, sc.CleanName, nullString(sc.Marker), sc.CalendarEventID, sc.BreakEventID, nullString(sc.CalendarID),
		unixOrNull(sc.Start), unixOrNull(sc.End), StatusScheduled, nullString(sc.TaskStatus), now, now, now)
	if err != nil {
		return fmt.Errorf("record scheduled task %s: %w", sc.TaskUID, err)
	}
	return nil
}

// MarkCompleted moves a row to completed and clears its event references.
func (s *Store) MarkCompleted(ctx context.Context, taskUID string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
UPDATE synced_tasks SET status = ?, current_emoji = NULL, calendar_event_id = NULL, break_event_id = NULL,
  last_checked_at = ?, updated_at = ?
WHERE task_uid = ?`, StatusCompleted, now, now, taskUID)
	if err != nil {
		return fmt.Errorf("mark task %s completed: %w", taskUID, err)
	}
	return nil
}

// MarkRescheduled moves a row to rescheduled with the given count and clears its event references.
func (s *Store) MarkRescheduled(ctx context.Context, taskUID string, count int, marker string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
UPDATE synced_tasks SET status = ?, reschedule_count = ?, current_emoji = ?, calendar_event_id = NULL,
  break_event_id = NULL, last_checked_at = ?, updated_at = ?
WHERE task_uid = ?`, StatusRescheduled, count, nullString(marker), now, now, taskUID)
	if err != nil {
		return fmt.Errorf("mark task %s rescheduled: %w", taskUID, err)
	}
	return nil
}

// SetMarker records the marker last written to the task name.
func (s *Store) SetMarker(ctx context.Context, taskUID, marker string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE synced_tasks SET current_emoji = ?, updated_at = ? WHERE task_uid = ?`,
		nullString(marker), s.now(), taskUID)
	if err != nil {
		return fmt.Errorf("set marker for task %s: %w", taskUID, err)
	}
	return nil
}

// Stats is the dashboard summary.
type Stats struct {
	ScheduledToday int `json:"scheduled_today"`
	Pending        int `json:"pending"`
	Rescheduled    int `json:"rescheduled"`
	Completed      int `json:"completed"`
}

// Stats counts rows for the dashboard. A task counts as rescheduled when it
// has ever been rescheduled, not only while in that state.
func (s *Store) Stats(ctx context.Context, dayStart, dayEnd time.Time) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
SELECT
  COALESCE(SUM(CASE WHEN scheduled_start >= ? AND scheduled_start < ? THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN reschedule_count > 0 OR status = ? THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
FROM synced_tasks`,
		dayStart.Unix(), dayEnd.Unix(), StatusPending, StatusRescheduled, StatusCompleted,
	).Scan(&st.ScheduledToday, &st.Pending, &st.Rescheduled, &st.Completed)
	if err != nil {
		return Stats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return st, nil
}

// Upcoming returns scheduled rows starting at or after now, soonest first.
func (s *Store) Upcoming(ctx context.Context, now time.Time, limit int) ([]Record, error) {
	recs, err := s.queryRecords(ctx, `WHERE status = ? AND scheduled_start >= ? ORDER BY scheduled_start LIMIT ?`,
		StatusScheduled, now.Unix(), clampLimit(limit, 20))
	if err != nil {
		return nil, fmt.Errorf("list upcoming tasks: %w", err)
	}
	return recs, nil
}

// RecentActivity returns the most recently touched rows.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]Record, error) {
	recs, err := s.queryRecords(ctx, `ORDER BY updated_at DESC, id DESC LIMIT ?`, clampLimit(limit, 10))
	if err != nil {
		return nil, fmt.Errorf("list recent activity: %w", err)
	}
	return recs, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 500 {
		return 500
	}
	return limit
}
