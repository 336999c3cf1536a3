package google

import (
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/taskslot/pkg/model"
)

const (
	taskEventPrefix  = "cts"
	breakEventPrefix = "ctb"
	minEventIDLength = 5

	// BreakColorID is the gray Google reserves here for break events.
	BreakColorID = "8"

	taskUIDProperty = "taskslot_task_uid"
)

// TaskEventID derives the event id for a task's attempt-th placement.
// Google event ids are base32hex, so only [a-v0-9] survive.
func TaskEventID(taskUID string, attempt int) string {
	return eventID(taskEventPrefix, taskUID, attempt)
}

// BreakEventID derives the id of the break that follows a task event.
func BreakEventID(taskUID string, attempt int) string {
	return eventID(breakEventPrefix, taskUID, attempt)
}

func eventID(prefix, taskUID string, attempt int) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, r := range strings.ToLower(taskUID) {
		if (r >= 'a' && r <= 'v') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	b.WriteString(strconv.Itoa(attempt))
	id := b.String()
	for len(id) < minEventIDLength {
		id += "0"
	}
	return id
}

func eventDateTime(t time.Time, tz string) *calendar.EventDateTime {
	return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: tz}
}

func toCalendarEvent(spec model.EventSpec) *calendar.Event {
	ev := &calendar.Event{
		Id:          spec.ID,
		Summary:     spec.Summary,
		Description: spec.Description,
		Start:       eventDateTime(spec.Start, spec.TimeZone),
		End:         eventDateTime(spec.End, spec.TimeZone),
		ColorId:     spec.ColorID,
	}
	if spec.Transparent {
		ev.Transparency = "transparent"
	}
	if spec.SourceURL != "" {
		ev.Source = &calendar.EventSource{Title: spec.SourceTitle, Url: spec.SourceURL}
	}
	if spec.TaskUID != "" {
		ev.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{taskUIDProperty: spec.TaskUID},
		}
	}
	return ev
}
