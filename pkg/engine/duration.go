package engine

import "github.com/harrisonrobin/taskslot/pkg/model"

const defaultEstimateMinutes = 60

// DurationMatrix estimates task length in minutes by type and priority.
type DurationMatrix struct {
	Focus map[model.Priority]int
	Noise map[model.Priority]int
}

// Estimate looks up the duration for a task. Unknown types are estimated as focus work.
func (m DurationMatrix) Estimate(priority model.Priority, taskType TaskType) int {
	table := m.Focus
	if taskType == TaskTypeNoise {
		table = m.Noise
	}
	if v, ok := table[priority]; ok && v > 0 {
		return v
	}
	return defaultEstimateMinutes
}

// EstimateAll fills EstimatedMinutes on every ranked task in place.
func (m DurationMatrix) EstimateAll(ranked []RankedTask) {
	for i := range ranked {
		ranked[i].EstimatedMinutes = m.Estimate(ranked[i].Task.Priority, ranked[i].TaskType)
	}
}
