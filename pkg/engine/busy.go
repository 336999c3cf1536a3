package engine

import (
	"sort"
	"time"
)

// MergeTolerance absorbs clock-skew noise: periods separated by less than it are contiguous.
const MergeTolerance = time.Minute

// MergeBusyPeriods coalesces overlapping or near-adjacent periods into a
// disjoint, start-ascending list. The input slice is not modified.
func MergeBusyPeriods(periods []BusyPeriod) []BusyPeriod {
	if len(periods) <= 1 {
		return append([]BusyPeriod(nil), periods...)
	}

	sorted := append([]BusyPeriod(nil), periods...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := make([]BusyPeriod, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if !next.Start.After(current.End.Add(MergeTolerance)) {
			if next.End.After(current.End) {
				current.End = next.End
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}
