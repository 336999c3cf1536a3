package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskslot/pkg/engine"
)

// defaultProjectUID keys the row that routes tasks without a project mapping.
const defaultProjectUID = ""

// Mapping routes a project's tasks to a calendar.
type Mapping struct {
	ProjectUID   string `json:"project_uid"`
	ProjectName  string `json:"project_name"`
	CalendarID   string `json:"calendar_id"`
	CalendarName string `json:"calendar_name"`
	IsDefault    bool   `json:"is_default"`
}

type BusyCalendar struct {
	CalendarID   string `json:"calendar_id"`
	CalendarName string `json:"calendar_name"`
	Enabled      bool   `json:"enabled"`
}

// SetCalendarMapping creates or replaces the mapping for m.ProjectUID.
func (s *Store) SetCalendarMapping(ctx context.Context, m Mapping) error {
	if m.ProjectUID == defaultProjectUID {
		return errors.New("set calendar mapping: project uid is required")
	}
	return s.upsertMapping(ctx, m.ProjectUID, m.ProjectName, m.CalendarID, m.CalendarName, false)
}

// SetDefaultCalendar routes unmapped tasks to calendarID.
func (s *Store) SetDefaultCalendar(ctx context.Context, calendarID, calendarName string) error {
	return s.upsertMapping(ctx, defaultProjectUID, "(default)", calendarID, calendarName, true)
}

func (s *Store) upsertMapping(ctx context.Context, projectUID, projectName, calendarID, calendarName string, isDefault bool) error {
	if calendarID == "" {
		return errors.New("calendar id is required")
	}
	if projectName == "" {
		projectName = "Unknown Project"
	}
	if calendarName == "" {
		calendarName = "Unknown Calendar"
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO calendar_mappings (project_uid, project_name, calendar_id, calendar_name, is_default, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(project_uid) DO UPDATE SET
  project_name=excluded.project_name,
  calendar_id=excluded.calendar_id,
  calendar_name=excluded.calendar_name,
  is_default=excluded.is_default,
  updated_at=excluded.updated_at;`,
		projectUID, projectName, calendarID, calendarName, isDefault, now, now)
	if err != nil {
		return fmt.Errorf("save calendar mapping for %q: %w", projectUID, err)
	}
	s.log.Info("calendar mapping saved", zap.String("project_uid", projectUID), zap.String("calendar_id", calendarID))
	return nil
}

// RemoveCalendarMapping deletes the mapping for projectUID, if any.
func (s *Store) RemoveCalendarMapping(ctx context.Context, projectUID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM calendar_mappings WHERE project_uid = ?`, projectUID); err != nil {
		return fmt.Errorf("remove calendar mapping for %q: %w", projectUID, err)
	}
	return nil
}

// Mappings lists every stored mapping, the default row included.
func (s *Store) Mappings(ctx context.Context) ([]Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT project_uid, project_name, calendar_id, calendar_name, is_default FROM calendar_mappings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list calendar mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.ProjectUID, &m.ProjectName, &m.CalendarID, &m.CalendarName, &m.IsDefault); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CalendarMappings returns the project routes used by the scheduler.
func (s *Store) CalendarMappings(ctx context.Context) ([]engine.CalendarMapping, error) {
	all, err := s.Mappings(ctx)
	if err != nil {
		return nil, err
	}
	var out []engine.CalendarMapping
	for _, m := range all {
		if m.IsDefault || m.ProjectUID == defaultProjectUID {
			continue
		}
		out = append(out, engine.CalendarMapping{ProjectUID: m.ProjectUID, CalendarID: m.CalendarID})
	}
	return out, nil
}

// DefaultCalendarID returns the calendar for unmapped tasks; ok is false when none is stored.
func (s *Store) DefaultCalendarID(ctx context.Context) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT calendar_id FROM calendar_mappings WHERE is_default = 1 LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get default calendar: %w", err)
	}
	return id, true, nil
}

// AddBusyCalendar marks a calendar as consulted for busy time.
func (s *Store) AddBusyCalendar(ctx context.Context, calendarID, calendarName string) error {
	if calendarName == "" {
		calendarName = "Unknown Calendar"
	}
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO busy_calendars (calendar_id, calendar_name, enabled, created_at, updated_at)
VALUES (?, ?, 1, ?, ?)
ON CONFLICT(calendar_id) DO UPDATE SET
  calendar_name=excluded.calendar_name,
  enabled=1,
  updated_at=excluded.updated_at;`, calendarID, calendarName, now, now)
	if err != nil {
		return fmt.Errorf("add busy calendar %s: %w", calendarID, err)
	}
	return nil
}

// RemoveBusyCalendar disables a busy calendar without forgetting its name.
func (s *Store) RemoveBusyCalendar(ctx context.Context, calendarID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE busy_calendars SET enabled = 0, updated_at = ? WHERE calendar_id = ?`,
		s.now(), calendarID)
	if err != nil {
		return fmt.Errorf("remove busy calendar %s: %w", calendarID, err)
	}
	return nil
}

func (s *Store) BusyCalendars(ctx context.Context) ([]BusyCalendar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT calendar_id, calendar_name, enabled FROM busy_calendars ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list busy calendars: %w", err)
	}
	defer rows.Close()

	var out []BusyCalendar
	for rows.Next() {
		var b BusyCalendar
		if err := rows.Scan(&b.CalendarID, &b.CalendarName, &b.Enabled); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BusyCalendarIDs returns the enabled busy calendars.
func (s *Store) BusyCalendarIDs(ctx context.Context) ([]string, error) {
	all, err := s.BusyCalendars(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, b := range all {
		if b.Enabled {
			ids = append(ids, b.CalendarID)
		}
	}
	return ids, nil
}
