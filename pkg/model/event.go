package model

import "time"

// EventSpec is a calendar event as the scheduler wants it created,
// independent of the calendar provider.
type EventSpec struct {
	// ID is the deterministic event identifier, empty to let the provider pick one.
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	ColorID     string
	// Transparent events do not count as busy time.
	Transparent bool
	SourceTitle string
	SourceURL   string
	// TaskUID is stored on the event so it can be traced back to its task.
	TaskUID string
}
