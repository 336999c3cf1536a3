package engine

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// FindSlotsForDay returns the free gaps of day's window that last at least
// minMinutes. The window is anchored in day's location.
func FindSlotsForDay(day time.Time, window DayWindow, busy []BusyPeriod, minMinutes int) []FreeSlot {
	if !window.Enabled {
		return nil
	}

	y, m, d := day.Date()
	loc := day.Location()
	windowStart := time.Date(y, m, d, window.StartHour, 0, 0, 0, loc)
	windowEnd := time.Date(y, m, d, window.EndHour, 0, 0, 0, loc)
	if !windowEnd.After(windowStart) {
		return nil
	}

	relevant := make([]BusyPeriod, 0, len(busy))
	for _, bp := range busy {
		if bp.End.After(windowStart) && bp.Start.Before(windowEnd) {
			relevant = append(relevant, bp)
		}
	}

	var slots []FreeSlot
	cursor := windowStart
	for _, bp := range MergeBusyPeriods(relevant) {
		if bp.Start.After(cursor) {
			slots = appendGap(slots, cursor, bp.Start, minMinutes)
		}
		if bp.End.After(cursor) {
			cursor = bp.End
		}
	}
	if cursor.Before(windowEnd) {
		slots = appendGap(slots, cursor, windowEnd, minMinutes)
	}
	return slots
}

func appendGap(slots []FreeSlot, start, end time.Time, minMinutes int) []FreeSlot {
	minutes := int(end.Sub(start) / time.Minute)
	if minutes < minMinutes {
		return slots
	}
	return append(slots, FreeSlot{Start: start, End: end, DurationMinutes: minutes})
}

// FindSlots collects the free slots of every calendar day between start and
// end inclusive, in chronological order. Days are independent: slots never
// span midnight even when adjacent windows touch.
func FindSlots(start, end time.Time, busy []BusyPeriod, windows WeeklyWindows, minMinutes int) ([]FreeSlot, error) {
	loc := start.Location()
	y, m, d := start.Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, loc)
	ey, em, ed := end.In(loc).Date()
	last := time.Date(ey, em, ed, 23, 59, 59, 0, loc)
	if last.Before(first) {
		return nil, nil
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: first,
		Until:   last,
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate days %s..%s: %w", first.Format(time.DateOnly), last.Format(time.DateOnly), err)
	}

	var slots []FreeSlot
	for _, day := range rule.All() {
		day = day.In(loc)
		slots = append(slots, FindSlotsForDay(day, windows[day.Weekday()], busy, minMinutes)...)
	}
	return slots, nil
}
