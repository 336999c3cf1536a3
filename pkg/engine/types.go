// Package engine holds the pure scheduling pipeline: busy interval merging,
// free slot discovery, task ranking and slot assignment.
package engine

import (
	"time"

	"github.com/harrisonrobin/taskslot/pkg/model"
)

// BusyPeriod is one occupied interval reported by a calendar.
type BusyPeriod struct {
	Start time.Time
	End   time.Time
}

// DayWindow is the allowed scheduling range of one weekday, in whole hours.
type DayWindow struct {
	Enabled   bool
	StartHour int
	EndHour   int
}

// WeeklyWindows maps each time.Weekday to its DayWindow.
type WeeklyWindows [7]DayWindow

// FreeSlot is a gap inside a day window. DurationMinutes is floored.
type FreeSlot struct {
	Start           time.Time
	End             time.Time
	DurationMinutes int
}

type TaskType string

const (
	TaskTypeFocus   TaskType = "focus"
	TaskTypeNoise   TaskType = "noise"
	TaskTypeUnknown TaskType = "unknown"
)

type Weights struct {
	Priority float64
	Type     float64
	Project  float64
	Urgency  float64
	Energy   float64
}

// RankedTask is a task with its computed desirability.
type RankedTask struct {
	Task            model.Task
	Score           float64
	BaseScore       float64
	RescheduleBoost float64
	TaskType        TaskType
	// EstimatedMinutes is filled by the caller from a DurationMatrix.
	EstimatedMinutes int
}

type BreakRules struct {
	ShortMinutes     int
	LongMinutes      int
	ThresholdMinutes int
}

// PeakHours is the [Start, End) hour range preferred for focus work.
type PeakHours struct {
	Start int
	End   int
}

type CalendarMapping struct {
	ProjectUID string
	CalendarID string
}

// Placement is the scheduler's decision for one task.
type Placement struct {
	Task         model.Task
	Ranked       RankedTask
	EventStart   time.Time
	EventEnd     time.Time
	BreakStart   time.Time
	BreakEnd     time.Time
	CalendarID   string
	IsPeakSlot   bool
	BreakMinutes int
}
