package engine

import (
	"slices"
	"time"
)

// BreakDuration picks the short break for tasks under the threshold and the long one otherwise.
func BreakDuration(taskMinutes int, rules BreakRules) int {
	if taskMinutes < rules.ThresholdMinutes {
		return rules.ShortMinutes
	}
	return rules.LongMinutes
}

// IsPeakSlot reports whether the slot starts inside the peak hour range.
func IsPeakSlot(slot FreeSlot, peak PeakHours) bool {
	h := slot.Start.Hour()
	return h >= peak.Start && h < peak.End
}

// FindBestSlot returns the index of the smallest slot able to hold the task
// and its trailing break. Focus tasks look at peak-hour slots first. ok is
// false when no slot is large enough.
func FindBestSlot(rt RankedTask, slots []FreeSlot, rules BreakRules, peak PeakHours) (int, bool) {
	need := rt.EstimatedMinutes + BreakDuration(rt.EstimatedMinutes, rules)

	if rt.TaskType == TaskTypeFocus {
		if i, ok := bestFit(slots, need, func(s FreeSlot) bool { return IsPeakSlot(s, peak) }); ok {
			return i, true
		}
	}
	return bestFit(slots, need, func(FreeSlot) bool { return true })
}

func bestFit(slots []FreeSlot, need int, accept func(FreeSlot) bool) (int, bool) {
	best := -1
	for i, s := range slots {
		if s.DurationMinutes < need || !accept(s) {
			continue
		}
		if best < 0 || s.DurationMinutes < slots[best].DurationMinutes {
			best = i
		}
	}
	return best, best >= 0
}

// ScheduleTasks greedily places ranked tasks, highest score first, into the
// best fitting remaining slot. Each placement consumes task time plus break
// from the front of its slot. Tasks that fit nowhere are skipped; there is
// no backtracking. The slots argument is left untouched.
func ScheduleTasks(ranked []RankedTask, slots []FreeSlot, mappings []CalendarMapping, defaultCalendarID string, rules BreakRules, peak PeakHours) []Placement {
	remaining := slices.Clone(slots)
	calendars := make(map[string]string, len(mappings))
	for _, m := range mappings {
		if _, seen := calendars[m.ProjectUID]; !seen {
			calendars[m.ProjectUID] = m.CalendarID
		}
	}

	var placements []Placement
	for _, rt := range ranked {
		idx, ok := FindBestSlot(rt, remaining, rules, peak)
		if !ok {
			continue
		}
		slot := remaining[idx]
		breakMinutes := BreakDuration(rt.EstimatedMinutes, rules)

		eventStart := slot.Start
		eventEnd := eventStart.Add(time.Duration(rt.EstimatedMinutes) * time.Minute)
		breakEnd := eventEnd.Add(time.Duration(breakMinutes) * time.Minute)

		calendarID := defaultCalendarID
		if uid := rt.Task.ProjectUID(); uid != "" {
			if id, ok := calendars[uid]; ok {
				calendarID = id
			}
		}

		placements = append(placements, Placement{
			Task:         rt.Task,
			Ranked:       rt,
			EventStart:   eventStart,
			EventEnd:     eventEnd,
			BreakStart:   eventEnd,
			BreakEnd:     breakEnd,
			CalendarID:   calendarID,
			IsPeakSlot:   IsPeakSlot(slot, peak),
			BreakMinutes: breakMinutes,
		})

		if !breakEnd.Before(slot.End) {
			remaining = slices.Delete(remaining, idx, idx+1)
			continue
		}
		remaining[idx] = FreeSlot{
			Start:           breakEnd,
			End:             slot.End,
			DurationMinutes: int(slot.End.Sub(breakEnd) / time.Minute),
		}
	}
	return placements
}
