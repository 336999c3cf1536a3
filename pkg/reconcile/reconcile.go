// Package reconcile runs the sync cycle between the task manager and the
// calendar: it cleans up after finished and overdue tasks, then ranks and
// places the remaining ones into free time.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskslot/pkg/clock"
	"github.com/harrisonrobin/taskslot/pkg/config"
	"github.com/harrisonrobin/taskslot/pkg/engine"
	"github.com/harrisonrobin/taskslot/pkg/lease"
	"github.com/harrisonrobin/taskslot/pkg/ledger"
	"github.com/harrisonrobin/taskslot/pkg/logging"
	"github.com/harrisonrobin/taskslot/pkg/model"
)

// FallbackCalendarID is used when neither a default mapping nor a configured
// default calendar exists.
const FallbackCalendarID = "primary"

type TaskManager interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	UpdateTask(ctx context.Context, uid string, upd model.TaskUpdate) (model.Task, error)
	TaskURL(uid string) string
}

type Calendar interface {
	Busy(ctx context.Context, calendarIDs []string, from, to time.Time) ([]engine.BusyPeriod, error)
	CreateEvent(ctx context.Context, calendarID string, spec model.EventSpec) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

type Ledger interface {
	ActiveRecords(ctx context.Context) ([]ledger.Record, error)
	OverdueRecords(ctx context.Context, cutoff time.Time) ([]ledger.Record, error)
	ScheduledTaskUIDs(ctx context.Context) (map[string]bool, error)
	RescheduleCounts(ctx context.Context) (map[string]int, error)
	RecordScheduled(ctx context.Context, sc ledger.Scheduled) error
	MarkCompleted(ctx context.Context, taskUID string) error
	MarkRescheduled(ctx context.Context, taskUID string, count int, marker string) error
	SetMarker(ctx context.Context, taskUID, marker string) error
	CalendarMappings(ctx context.Context) ([]engine.CalendarMapping, error)
	DefaultCalendarID(ctx context.Context) (string, bool, error)
	BusyCalendarIDs(ctx context.Context) ([]string, error)
}

type Leaser interface {
	Acquire(ctx context.Context) (lease.Token, bool, error)
	Release(ctx context.Context, tok lease.Token) error
}

// Colorizer picks the event colour for a project.
type Colorizer interface {
	ColorID(project string) string
	Save() error
}

// Deps are the collaborators of an Orchestrator. Colors is optional.
type Deps struct {
	Tasks    TaskManager
	Calendar Calendar
	Ledger   Ledger
	Lease    Leaser
	Colors   Colorizer
}

type Orchestrator struct {
	Deps
	cfg      *config.Config
	clock    clock.Clock
	log      *zap.Logger
	fallback string
}

type Option func(*Orchestrator)

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithFallbackCalendar sets the calendar used when the ledger has no default mapping.
func WithFallbackCalendar(calendarID string) Option {
	return func(o *Orchestrator) { o.fallback = calendarID }
}

func New(deps Deps, cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		Deps:     deps,
		cfg:      cfg,
		clock:    clock.System{},
		fallback: FallbackCalendarID,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = logging.OrNop(o.log)
	if o.fallback == "" {
		o.fallback = FallbackCalendarID
	}
	return o
}

// Result summarizes one cycle. Contended is set when another cycle held the
// lease; that outcome is expected and carries no other work.
type Result struct {
	RunID       string    `json:"run_id"`
	Success     bool      `json:"success"`
	Contended   bool      `json:"contended"`
	Scheduled   int       `json:"tasks_scheduled"`
	Rescheduled int       `json:"tasks_rescheduled"`
	Completed   int       `json:"tasks_completed"`
	Errors      []string  `json:"errors"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}
