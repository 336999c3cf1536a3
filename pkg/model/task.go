package model

import "time"

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusArchived   Status = "archived"
	StatusWaiting    Status = "waiting"
	StatusCancelled  Status = "cancelled"
	StatusPlanned    Status = "planned"
)

// Terminal reports whether the task is finished from the scheduler's point of view.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusArchived, StatusCancelled:
		return true
	}
	return false
}

// Schedulable reports whether a task in this status may be placed on the calendar.
func (s Status) Schedulable() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusPlanned:
		return true
	}
	return false
}

type Tag struct {
	Name string `json:"name"`
}

type Project struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// Task represents a task owned by the external task manager.
type Task struct {
	UID      string
	Name     string
	Note     string
	Priority Priority
	Tags     []Tag
	Project  *Project
	// DueDate is nil when the task has no due date.
	DueDate *time.Time
	Status  Status
}

// ProjectUID returns the project uid or "" when the task has no project.
func (t Task) ProjectUID() string {
	if t.Project == nil {
		return ""
	}
	return t.Project.UID
}

// Eligible reports whether the task can enter a scheduling round.
func (t Task) Eligible() bool {
	return t.Status.Schedulable() && t.DueDate != nil
}

// TaskUpdate is a partial update pushed back to the task manager.
// Nil fields are left untouched.
type TaskUpdate struct {
	Name   *string `json:"name,omitempty"`
	Status *Status `json:"status,omitempty"`
}
