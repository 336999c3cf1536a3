// Package ics renders scheduled work as an iCalendar feed.
package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/harrisonrobin/taskslot/pkg/engine"
	"github.com/harrisonrobin/taskslot/pkg/ledger"
)

const productID = "-//taskslot//scheduled tasks//EN"

func newCalendar(name, tz string) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(name)
	if tz != "" {
		cal.SetXWRTimezone(tz)
	}
	return cal
}

// ExportPlacements renders a plan: one event per task and one per break.
func ExportPlacements(placements []engine.Placement, tz string, stamp time.Time) string {
	cal := newCalendar("taskslot plan", tz)
	for _, p := range placements {
		name := engine.StripMarkers(p.Task.Name)

		ev := cal.AddEvent(p.Task.UID + "@taskslot")
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(p.EventStart)
		ev.SetEndAt(p.EventEnd)
		ev.SetSummary(engine.ApplyMarker(name, engine.MarkerScheduled))
		if p.Task.Note != "" {
			ev.SetDescription(p.Task.Note)
		}
		ev.SetProperty(ical.ComponentPropertyCategories, string(p.Ranked.TaskType))
		ev.SetProperty(ical.ComponentPropertyLocation, p.CalendarID)

		if p.BreakMinutes == 0 {
			continue
		}
		brk := cal.AddEvent(p.Task.UID + "-break@taskslot")
		brk.SetDtStampTime(stamp)
		brk.SetStartAt(p.BreakStart)
		brk.SetEndAt(p.BreakEnd)
		brk.SetSummary("Break")
		brk.SetDescription("Break after: " + name)
		brk.SetProperty(ical.ComponentPropertyTransp, "TRANSPARENT")
	}
	return cal.Serialize()
}

// ExportRecords renders ledger rows that still hold a time slot.
func ExportRecords(records []ledger.Record, tz string, stamp time.Time) string {
	cal := newCalendar("taskslot schedule", tz)
	for _, r := range records {
		if r.ScheduledStart.IsZero() || r.ScheduledEnd.IsZero() {
			continue
		}
		ev := cal.AddEvent(r.TaskUID + "@taskslot")
		ev.SetDtStampTime(stamp)
		if !r.UpdatedAt.IsZero() {
			ev.SetModifiedAt(r.UpdatedAt)
		}
		ev.SetStartAt(r.ScheduledStart)
		ev.SetEndAt(r.ScheduledEnd)
		ev.SetSummary(r.CleanName)
		ev.SetProperty(ical.ComponentPropertyCategories, string(r.Status))
		if r.Status == ledger.StatusScheduled {
			ev.SetStatus(ical.ObjectStatusConfirmed)
		} else {
			ev.SetStatus(ical.ObjectStatusCancelled)
		}
	}
	return cal.Serialize()
}
