package tududi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/taskslot/pkg/model"
)

const dateLayout = "2006-01-02"

// apiTask is a task as Tududi serializes it. Older servers send numeric
// priority and status and capitalized association keys.
type apiTask struct {
	UID        string          `json:"uid"`
	Name       string          `json:"name"`
	Note       string          `json:"note"`
	Priority   json.RawMessage `json:"priority"`
	Status     json.RawMessage `json:"status"`
	DueDate    *string         `json:"due_date"`
	Tags       []model.Tag     `json:"tags"`
	TagsAlt    []model.Tag     `json:"Tags"`
	Project    *model.Project  `json:"project"`
	ProjectAlt *model.Project  `json:"Project"`
	ProjectUID string          `json:"project_uid"`
}

var priorityByNumber = map[int]model.Priority{
	0: model.PriorityLow,
	1: model.PriorityMedium,
	2: model.PriorityHigh,
}

var statusByNumber = map[int]model.Status{
	0: model.StatusNotStarted,
	1: model.StatusInProgress,
	2: model.StatusDone,
	3: model.StatusArchived,
	4: model.StatusWaiting,
	5: model.StatusCancelled,
	6: model.StatusPlanned,
}

// decodeEnum reads a field that may be a JSON string or number. Numbers are
// mapped through table; unknown numbers yield def.
func decodeEnum[T ~string](raw json.RawMessage, table map[int]T, def T) T {
	if len(raw) == 0 || string(raw) == "null" {
		return def
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, ok := table[n]; ok {
			return v
		}
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return T(strings.ToLower(s))
	}
	return def
}

// parseDue accepts a bare date, interpreted as midnight in loc, or an RFC 3339 timestamp.
func parseDue(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("unrecognized due date %q", s)
	}
	return &t, nil
}

// toModel never drops a task: an unreadable due date is logged and left nil,
// so the task still reaches completion and overdue handling.
func (t apiTask) toModel(loc *time.Location, log *zap.Logger) model.Task {
	out := model.Task{
		UID:      t.UID,
		Name:     t.Name,
		Note:     t.Note,
		Priority: decodeEnum(t.Priority, priorityByNumber, model.PriorityMedium),
		Status:   decodeEnum(t.Status, statusByNumber, model.StatusNotStarted),
		Tags:     t.Tags,
	}
	if out.Tags == nil {
		out.Tags = t.TagsAlt
	}
	switch {
	case t.Project != nil && t.Project.UID != "":
		out.Project = t.Project
	case t.ProjectAlt != nil && t.ProjectAlt.UID != "":
		out.Project = t.ProjectAlt
	case t.ProjectUID != "":
		out.Project = &model.Project{UID: t.ProjectUID}
	}
	if t.DueDate != nil {
		due, err := parseDue(*t.DueDate, loc)
		if err != nil {
			log.Warn("ignoring unreadable due date", zap.String("task_uid", t.UID), zap.Error(err))
		}
		out.DueDate = due
	}
	return out
}

// tasksEnvelope accepts both {"tasks": [...]} and a bare array.
type tasksEnvelope struct {
	Tasks []apiTask
}

func (e *tasksEnvelope) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "[") {
		return json.Unmarshal(b, &e.Tasks)
	}
	var wrapped struct {
		Tasks []apiTask `json:"tasks"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	e.Tasks = wrapped.Tasks
	return nil
}
