package engine

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var workday = DayWindow{Enabled: true, StartHour: 9, EndHour: 17}

func slot(start, end time.Time) FreeSlot {
	return FreeSlot{Start: start, End: end, DurationMinutes: int(end.Sub(start) / time.Minute)}
}

func TestFindSlotsForDay(t *testing.T) {
	day := at(0, 0, 0)

	tests := []struct {
		name   string
		window DayWindow
		busy   []BusyPeriod
		min    int
		want   []FreeSlot
	}{
		{
			name:   "disabled window",
			window: DayWindow{Enabled: false, StartHour: 9, EndHour: 17},
			min:    30,
			want:   nil,
		},
		{
			name:   "no busy time",
			window: workday,
			min:    30,
			want:   []FreeSlot{slot(at(9, 0, 0), at(17, 0, 0))},
		},
		{
			name:   "meeting in the middle",
			window: workday,
			busy:   []BusyPeriod{bp(at(10, 0, 0), at(11, 0, 0))},
			min:    30,
			want:   []FreeSlot{slot(at(9, 0, 0), at(10, 0, 0)), slot(at(11, 0, 0), at(17, 0, 0))},
		},
		{
			name:   "short gaps dropped",
			window: workday,
			busy:   []BusyPeriod{bp(at(9, 20, 0), at(16, 0, 0))},
			min:    30,
			want:   []FreeSlot{slot(at(16, 0, 0), at(17, 0, 0))},
		},
		{
			name:   "busy outside window ignored",
			window: workday,
			busy:   []BusyPeriod{bp(at(6, 0, 0), at(8, 0, 0)), bp(at(18, 0, 0), at(19, 0, 0))},
			min:    30,
			want:   []FreeSlot{slot(at(9, 0, 0), at(17, 0, 0))},
		},
		{
			name:   "busy straddling window edges",
			window: workday,
			busy:   []BusyPeriod{bp(at(8, 0, 0), at(10, 0, 0)), bp(at(16, 0, 0), at(18, 0, 0))},
			min:    30,
			want:   []FreeSlot{slot(at(10, 0, 0), at(16, 0, 0))},
		},
		{
			name:   "fully booked",
			window: workday,
			busy:   []BusyPeriod{bp(at(8, 0, 0), at(18, 0, 0))},
			min:    30,
			want:   nil,
		},
		{
			name:   "duration floors partial minutes",
			window: workday,
			busy:   []BusyPeriod{bp(at(9, 30, 30), at(17, 0, 0))},
			min:    30,
			want:   []FreeSlot{{Start: at(9, 0, 0), End: at(9, 30, 30), DurationMinutes: 30}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindSlotsForDay(day, tt.window, tt.busy, tt.min)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("FindSlotsForDay mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFindSlotsForDayCoversWindow(t *testing.T) {
	busy := []BusyPeriod{
		bp(at(9, 45, 0), at(10, 30, 0)),
		bp(at(10, 15, 0), at(11, 0, 0)),
		bp(at(13, 0, 0), at(13, 30, 0)),
		bp(at(16, 30, 0), at(17, 30, 0)),
	}
	slots := FindSlotsForDay(at(0, 0, 0), workday, busy, 1)

	windowStart, windowEnd := at(9, 0, 0), at(17, 0, 0)
	var clipped []BusyPeriod
	for _, b := range MergeBusyPeriods(busy) {
		if b.Start.Before(windowStart) {
			b.Start = windowStart
		}
		if b.End.After(windowEnd) {
			b.End = windowEnd
		}
		clipped = append(clipped, b)
	}

	var total time.Duration
	for _, s := range slots {
		total += s.End.Sub(s.Start)
		assert.GreaterOrEqual(t, s.DurationMinutes, 1)
		for _, b := range clipped {
			assert.False(t, s.Start.Before(b.End) && b.Start.Before(s.End), "slot %v overlaps busy %v", s, b)
		}
	}
	for _, b := range clipped {
		total += b.End.Sub(b.Start)
	}
	assert.Equal(t, windowEnd.Sub(windowStart), total)
}

func TestFindSlotsForDayRespectsMinimum(t *testing.T) {
	busy := []BusyPeriod{
		bp(at(9, 10, 0), at(9, 50, 0)),
		bp(at(10, 35, 0), at(12, 0, 0)),
		bp(at(12, 29, 0), at(16, 0, 0)),
	}
	for _, s := range FindSlotsForDay(at(0, 0, 0), workday, busy, 30) {
		assert.GreaterOrEqual(t, s.DurationMinutes, 30)
	}
}

func TestFindSlotsAcrossWeek(t *testing.T) {
	var windows WeeklyWindows
	for d := time.Monday; d <= time.Friday; d++ {
		windows[d] = DayWindow{Enabled: true, StartHour: 9, EndHour: 18}
	}

	// 2024-01-01 is a Monday.
	start := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC)
	busy := []BusyPeriod{bp(time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 13, 0, 0, 0, time.UTC))}

	slots, err := FindSlots(start, end, busy, windows, 30)
	require.NoError(t, err)
	require.Len(t, slots, 6)

	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i].Start.After(slots[i-1].Start), "slots out of order")
	}
	for _, s := range slots {
		assert.NotEqual(t, time.Saturday, s.Start.Weekday())
		assert.NotEqual(t, time.Sunday, s.Start.Weekday())
		assert.Equal(t, s.Start.YearDay(), s.End.YearDay(), "slot crosses midnight")
	}
	assert.Equal(t, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), slots[2].Start)
	assert.Equal(t, time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC), slots[2].End)
	assert.Equal(t, time.Date(2024, 1, 3, 13, 0, 0, 0, time.UTC), slots[3].Start)
}

func TestFindSlotsHonorsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	var windows WeeklyWindows
	windows[time.Tuesday] = DayWindow{Enabled: true, StartHour: 9, EndHour: 12}

	start := time.Date(2024, 1, 2, 0, 30, 0, 0, loc)
	slots, err := FindSlots(start, start, nil, windows, 30)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 9, slots[0].Start.Hour())
	assert.Equal(t, time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC), slots[0].Start.UTC())
}

func TestFindSlotsEndBeforeStart(t *testing.T) {
	var windows WeeklyWindows
	for d := range windows {
		windows[d] = workday
	}
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	slots, err := FindSlots(start, start.AddDate(0, 0, -2), nil, windows, 30)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestFindSlotsSpansYearEnd(t *testing.T) {
	var windows WeeklyWindows
	for d := range windows {
		windows[d] = workday
	}
	start := time.Date(2024, 12, 30, 8, 0, 0, 0, time.UTC)
	slots, err := FindSlots(start, start.AddDate(0, 0, 7), nil, windows, 30)
	require.NoError(t, err)
	require.Len(t, slots, 8, "one slot per day, both end days included")
	assert.Equal(t, 2025, slots[len(slots)-1].Start.Year())
	assert.Equal(t, time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), slots[len(slots)-1].Start)
}
