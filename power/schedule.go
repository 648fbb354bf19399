package power

import "sort"

// TaskPlan describes one schedulable activity for the power budgeter.
type TaskPlan struct {
	Name          string
	DeadlineHours float64
	PowerMA       float64
	DurationHours float64
}

// OptimizeSchedule picks the activities a one-day battery budget can carry.
// Candidates are considered in deadline order, stable for ties. One is
// accepted when its draw fits the average the capacity still allows over the
// remainder of the day; accepted work consumes schedule time. Once the day
// is spent, nothing further is admitted.
func OptimizeSchedule(tasks []TaskPlan, capacityMAh float64) []TaskPlan {
	plan := make([]TaskPlan, len(tasks))
	copy(plan, tasks)
	sort.SliceStable(plan, func(i, j int) bool {
		return plan[i].DeadlineHours < plan[j].DeadlineHours
	})

	accepted := plan[:0]
	elapsed := 0.0
	for _, task := range plan {
		if elapsed >= 24 {
			break
		}
		budget := capacityMAh / (24 - elapsed)
		if task.PowerMA <= budget {
			accepted = append(accepted, task)
			elapsed += task.DurationHours
		}
	}
	return accepted
}
