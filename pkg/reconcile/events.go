package reconcile

import (
	"strings"

	"github.com/harrisonrobin/taskslot/pkg/engine"
	"github.com/harrisonrobin/taskslot/pkg/google"
	"github.com/harrisonrobin/taskslot/pkg/model"
)

const (
	breakSummary = "Break"
	sourceTitle  = "Tududi"
)

func (o *Orchestrator) taskEvent(p engine.Placement, cleanName string, attempt int) model.EventSpec {
	link := o.Tasks.TaskURL(p.Task.UID)
	spec := model.EventSpec{
		ID:          google.TaskEventID(p.Task.UID, attempt),
		Summary:     engine.ApplyMarker(cleanName, engine.MarkerScheduled),
		Description: taskDescription(p.Task.Note, link),
		Start:       p.EventStart,
		End:         p.EventEnd,
		TimeZone:    o.cfg.Timezone,
		SourceTitle: sourceTitle,
		SourceURL:   link,
		TaskUID:     p.Task.UID,
	}
	if o.Colors != nil {
		spec.ColorID = o.Colors.ColorID(p.Task.ProjectUID())
	}
	return spec
}

func (o *Orchestrator) breakEvent(p engine.Placement, cleanName string, attempt int) model.EventSpec {
	return model.EventSpec{
		ID:          google.BreakEventID(p.Task.UID, attempt),
		Summary:     breakSummary,
		Description: "Break after: " + cleanName,
		Start:       p.BreakStart,
		End:         p.BreakEnd,
		TimeZone:    o.cfg.Timezone,
		ColorID:     google.BreakColorID,
		Transparent: true,
		TaskUID:     p.Task.UID,
	}
}

func taskDescription(note, link string) string {
	var parts []string
	if note = strings.TrimSpace(note); note != "" {
		parts = append(parts, note)
	}
	if link != "" {
		parts = append(parts, "🔗 "+link)
	}
	return strings.Join(parts, "\n\n")
}
