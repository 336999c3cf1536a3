package engine

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/harrisonrobin/taskslot/pkg/model"
)

const (
	DefaultProjectImportance = 2.0

	rescheduleBoostStep = 0.10
	rescheduleBoostCap  = 0.50
)

var priorityScores = map[model.Priority]float64{
	model.PriorityHigh:   4,
	model.PriorityMedium: 3,
	model.PriorityLow:    2,
}

var typeScores = map[TaskType]float64{
	TaskTypeFocus:   3,
	TaskTypeUnknown: 2,
	TaskTypeNoise:   1,
}

// energyScores mirrors typeScores: focus work is modeled as high energy.
var energyScores = typeScores

// ExtractTaskType reads the first "type:" tag, case-insensitively.
func ExtractTaskType(tags []model.Tag) TaskType {
	for _, tag := range tags {
		name := strings.ToLower(tag.Name)
		if !strings.HasPrefix(name, "type:") {
			continue
		}
		switch strings.TrimSpace(strings.TrimPrefix(name, "type:")) {
		case "focus":
			return TaskTypeFocus
		case "noise":
			return TaskTypeNoise
		}
		return TaskTypeUnknown
	}
	return TaskTypeUnknown
}

// Urgency buckets the distance between the due date and now, by calendar date
// in now's location: overdue 5, today/tomorrow 4, within a week 3, within two
// weeks 2, later or undated 1.
func Urgency(due *time.Time, now time.Time) int {
	if due == nil {
		return 1
	}
	loc := now.Location()
	dy, dm, dd := due.In(loc).Date()
	ny, nm, nd := now.Date()
	dueDay := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	days := int(dueDay.Sub(today).Hours() / 24)

	switch {
	case days < 0:
		return 5
	case days <= 1:
		return 4
	case days <= 7:
		return 3
	case days <= 14:
		return 2
	}
	return 1
}

// Score is the breakdown of a task's ranking score.
type Score struct {
	Score float64
	Base  float64
	Boost float64
}

// RescheduleBoost returns the multiplicative boost earned by prior reschedules.
func RescheduleBoost(rescheduleCount int) float64 {
	if rescheduleCount <= 0 {
		return 0
	}
	return math.Min(float64(rescheduleCount)*rescheduleBoostStep, rescheduleBoostCap)
}

// ScoreTask computes the weighted score of task as of now.
func ScoreTask(task model.Task, w Weights, rescheduleCount int, projectImportance float64, now time.Time) Score {
	taskType := ExtractTaskType(task.Tags)

	priority, ok := priorityScores[task.Priority]
	if !ok {
		priority = priorityScores[model.PriorityLow]
	}

	base := priority*w.Priority +
		typeScores[taskType]*w.Type +
		projectImportance*w.Project +
		float64(Urgency(task.DueDate, now))*w.Urgency +
		energyScores[taskType]*w.Energy

	boost := RescheduleBoost(rescheduleCount)
	return Score{Score: base * (1 + boost), Base: base, Boost: boost}
}

// RankTasks scores every task and orders them by descending score. The sort
// is stable, so equal scores keep their input order.
func RankTasks(tasks []model.Task, w Weights, rescheduleCounts map[string]int, projectImportance map[string]float64, now time.Time) []RankedTask {
	ranked := make([]RankedTask, 0, len(tasks))
	for _, task := range tasks {
		importance := DefaultProjectImportance
		if uid := task.ProjectUID(); uid != "" {
			if v, ok := projectImportance[uid]; ok {
				importance = v
			}
		}
		s := ScoreTask(task, w, rescheduleCounts[task.UID], importance, now)
		ranked = append(ranked, RankedTask{
			Task:            task,
			Score:           s.Score,
			BaseScore:       s.Base,
			RescheduleBoost: s.Boost,
			TaskType:        ExtractTaskType(task.Tags),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
