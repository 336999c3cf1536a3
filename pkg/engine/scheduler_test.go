package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskslot/pkg/model"
)

var (
	testRules = BreakRules{ShortMinutes: 15, LongMinutes: 30, ThresholdMinutes: 60}
	testPeak  = PeakHours{Start: 9, End: 12}
)

func ranked(uid string, taskType TaskType, minutes int) RankedTask {
	return RankedTask{
		Task:             model.Task{UID: uid, Priority: model.PriorityHigh},
		TaskType:         taskType,
		EstimatedMinutes: minutes,
	}
}

func TestBreakDuration(t *testing.T) {
	assert.Equal(t, 15, BreakDuration(30, testRules))
	assert.Equal(t, 15, BreakDuration(59, testRules))
	assert.Equal(t, 30, BreakDuration(60, testRules))
	assert.Equal(t, 30, BreakDuration(120, testRules))
}

func TestIsPeakSlot(t *testing.T) {
	assert.True(t, IsPeakSlot(slot(at(9, 0, 0), at(10, 0, 0)), testPeak))
	assert.True(t, IsPeakSlot(slot(at(11, 59, 0), at(13, 0, 0)), testPeak))
	assert.False(t, IsPeakSlot(slot(at(12, 0, 0), at(13, 0, 0)), testPeak))
	assert.False(t, IsPeakSlot(slot(at(8, 59, 0), at(13, 0, 0)), testPeak))
}

func TestFindBestSlot(t *testing.T) {
	slots := []FreeSlot{
		slot(at(13, 0, 0), at(14, 0, 0)), // 60, off-peak
		slot(at(9, 0, 0), at(11, 0, 0)),  // 120, peak
		slot(at(15, 0, 0), at(17, 0, 0)), // 120, off-peak
	}

	t.Run("focus prefers peak", func(t *testing.T) {
		idx, ok := FindBestSlot(ranked("f", TaskTypeFocus, 30), slots, testRules, testPeak)
		require.True(t, ok)
		assert.Equal(t, 1, idx)
	})

	t.Run("noise takes smallest fit", func(t *testing.T) {
		idx, ok := FindBestSlot(ranked("n", TaskTypeNoise, 30), slots, testRules, testPeak)
		require.True(t, ok)
		assert.Equal(t, 0, idx)
	})

	t.Run("unknown is not treated as focus", func(t *testing.T) {
		idx, ok := FindBestSlot(ranked("u", TaskTypeUnknown, 30), slots, testRules, testPeak)
		require.True(t, ok)
		assert.Equal(t, 0, idx)
	})

	t.Run("focus falls back when no peak slot fits", func(t *testing.T) {
		small := []FreeSlot{
			slot(at(9, 0, 0), at(9, 45, 0)),
			slot(at(15, 0, 0), at(17, 0, 0)),
			slot(at(13, 0, 0), at(16, 0, 0)),
		}
		idx, ok := FindBestSlot(ranked("f", TaskTypeFocus, 60), small, testRules, testPeak)
		require.True(t, ok)
		assert.Equal(t, 1, idx)
	})

	t.Run("nothing fits", func(t *testing.T) {
		_, ok := FindBestSlot(ranked("big", TaskTypeFocus, 240), slots, testRules, testPeak)
		assert.False(t, ok)
	})

	t.Run("ties keep earliest slot", func(t *testing.T) {
		same := []FreeSlot{slot(at(14, 0, 0), at(15, 0, 0)), slot(at(16, 0, 0), at(17, 0, 0))}
		idx, ok := FindBestSlot(ranked("n", TaskTypeNoise, 30), same, testRules, testPeak)
		require.True(t, ok)
		assert.Equal(t, 0, idx)
	})
}

func TestScheduleTasksEndToEnd(t *testing.T) {
	slots := []FreeSlot{slot(at(9, 0, 0), at(17, 0, 0))}
	placements := ScheduleTasks([]RankedTask{ranked("t1", TaskTypeFocus, 120)}, slots, nil, "primary", testRules, testPeak)

	require.Len(t, placements, 1)
	p := placements[0]
	assert.Equal(t, at(9, 0, 0), p.EventStart)
	assert.Equal(t, at(11, 0, 0), p.EventEnd)
	assert.Equal(t, at(11, 0, 0), p.BreakStart)
	assert.Equal(t, at(11, 30, 0), p.BreakEnd)
	assert.Equal(t, 30, p.BreakMinutes)
	assert.True(t, p.IsPeakSlot)
	assert.Equal(t, "primary", p.CalendarID)
	assert.Equal(t, "t1", p.Task.UID)
}

func TestScheduleTasksOversizedTask(t *testing.T) {
	slots := []FreeSlot{slot(at(9, 0, 0), at(17, 0, 0))}
	placements := ScheduleTasks([]RankedTask{ranked("huge", TaskTypeNoise, 480)}, slots, nil, "primary", testRules, testPeak)
	assert.Empty(t, placements)
}

func TestScheduleTasksExactFitConsumesSlot(t *testing.T) {
	slots := []FreeSlot{slot(at(9, 0, 0), at(11, 30, 0))}
	tasks := []RankedTask{ranked("a", TaskTypeFocus, 120), ranked("b", TaskTypeNoise, 15)}

	placements := ScheduleTasks(tasks, slots, nil, "primary", testRules, testPeak)
	require.Len(t, placements, 1)
	assert.Equal(t, "a", placements[0].Task.UID)
	assert.Equal(t, at(11, 30, 0), placements[0].BreakEnd)

	// Input slice untouched.
	assert.Equal(t, at(9, 0, 0), slots[0].Start)
	assert.Equal(t, 150, slots[0].DurationMinutes)
}

func TestScheduleTasksShrinksSlot(t *testing.T) {
	slots := []FreeSlot{slot(at(9, 0, 0), at(17, 0, 0))}
	tasks := []RankedTask{ranked("a", TaskTypeFocus, 120), ranked("b", TaskTypeNoise, 30)}

	placements := ScheduleTasks(tasks, slots, nil, "primary", testRules, testPeak)
	require.Len(t, placements, 2)
	assert.Equal(t, at(11, 30, 0), placements[1].EventStart)
	assert.Equal(t, at(12, 0, 0), placements[1].EventEnd)
	assert.Equal(t, at(12, 15, 0), placements[1].BreakEnd)
	assert.Equal(t, 15, placements[1].BreakMinutes)
	assert.True(t, placements[1].IsPeakSlot, "remainder starts at 11:30")
}

func TestScheduleTasksSkipsAndContinues(t *testing.T) {
	slots := []FreeSlot{slot(at(13, 0, 0), at(14, 0, 0))}
	tasks := []RankedTask{ranked("too-long", TaskTypeFocus, 120), ranked("fits", TaskTypeNoise, 30)}

	placements := ScheduleTasks(tasks, slots, nil, "primary", testRules, testPeak)
	require.Len(t, placements, 1)
	assert.Equal(t, "fits", placements[0].Task.UID)
}

func TestScheduleTasksRankOrderClaimsTightestSlot(t *testing.T) {
	slots := []FreeSlot{
		slot(at(14, 0, 0), at(17, 0, 0)), // 180
		slot(at(13, 0, 0), at(13, 45, 0)), // 45
	}
	tasks := []RankedTask{ranked("first", TaskTypeNoise, 30), ranked("second", TaskTypeNoise, 30)}

	placements := ScheduleTasks(tasks, slots, nil, "primary", testRules, testPeak)
	require.Len(t, placements, 2)
	assert.Equal(t, at(13, 0, 0), placements[0].EventStart)
	assert.Equal(t, at(14, 0, 0), placements[1].EventStart)
}

func TestScheduleTasksCalendarMapping(t *testing.T) {
	slots := []FreeSlot{slot(at(9, 0, 0), at(17, 0, 0))}
	work := ranked("work", TaskTypeNoise, 30)
	work.Task.Project = &model.Project{UID: "p-work"}
	home := ranked("home", TaskTypeNoise, 30)
	home.Task.Project = &model.Project{UID: "p-home"}
	loose := ranked("loose", TaskTypeNoise, 30)

	mappings := []CalendarMapping{{ProjectUID: "p-work", CalendarID: "work@group.calendar.google.com"}}
	placements := ScheduleTasks([]RankedTask{work, home, loose}, slots, mappings, "default-cal", testRules, testPeak)

	require.Len(t, placements, 3)
	assert.Equal(t, "work@group.calendar.google.com", placements[0].CalendarID)
	assert.Equal(t, "default-cal", placements[1].CalendarID)
	assert.Equal(t, "default-cal", placements[2].CalendarID)
}

func TestScheduleTasksNoOverlap(t *testing.T) {
	slots := []FreeSlot{
		slot(at(9, 0, 0), at(12, 0, 0)),
		slot(at(13, 0, 0), at(17, 0, 0)),
	}
	var tasks []RankedTask
	for _, m := range []int{60, 45, 30, 120, 15, 30, 90} {
		tasks = append(tasks, ranked("t", TaskTypeFocus, m))
	}
	placements := ScheduleTasks(tasks, slots, nil, "primary", testRules, testPeak)
	require.NotEmpty(t, placements)

	for i, a := range placements {
		assert.Equal(t, a.EventEnd, a.EventStart.Add(time.Duration(a.Ranked.EstimatedMinutes)*time.Minute))
		for j, b := range placements {
			if i == j {
				continue
			}
			overlap := a.EventStart.Before(b.BreakEnd) && b.EventStart.Before(a.BreakEnd)
			assert.False(t, overlap, "placement %d overlaps %d", i, j)
		}
	}
}
