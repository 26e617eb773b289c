package planner

import (
	"fmt"
	"strings"
)

// Validate rejects malformed requests before any slot or allocation work runs.
// A failed validation means no partial output: BuildPlan refuses to begin.
func (r Request) Validate() error {
	if !r.WindowEnd.After(r.WindowStart) {
		return fmt.Errorf("window_end must be after window_start")
	}
	if r.FocusHoursStart < 0 || r.FocusHoursStart > 23 {
		return fmt.Errorf("focus_hours_start must be between 0 and 23")
	}
	if r.FocusHoursEnd < 0 || r.FocusHoursEnd > 23 {
		return fmt.Errorf("focus_hours_end must be between 0 and 23")
	}
	if r.MaxPlannedMinutesPerDay <= 0 {
		return fmt.Errorf("max_planned_minutes_per_day must be greater than 0")
	}
	seen := map[string]bool{}
	for _, task := range r.Tasks {
		if strings.TrimSpace(task.ID) == "" {
			return fmt.Errorf("task id must not be empty")
		}
		if seen[task.ID] {
			return fmt.Errorf("duplicate task id %s", task.ID)
		}
		seen[task.ID] = true
		if task.EstimatedDurationMinutes <= 0 {
			return fmt.Errorf("task %s: estimated_duration_minutes must be greater than 0", task.ID)
		}
		if err := validateDependencyIDs(task.ID, task.DependencyIDs); err != nil {
			return err
		}
	}
	for _, event := range r.FixedEvents {
		if strings.TrimSpace(event.ID) == "" {
			return fmt.Errorf("fixed event id must not be empty")
		}
		if !event.EndTime.After(event.StartTime) {
			return fmt.Errorf("fixed event %s: end_time must be after start_time", event.ID)
		}
	}
	return nil
}

func validateDependencyIDs(taskID string, deps []string) error {
	seen := map[string]bool{}
	for _, dep := range deps {
		if strings.TrimSpace(dep) == "" {
			return fmt.Errorf("task %s: dependency_ids must not contain empty values", taskID)
		}
		if dep == taskID {
			return fmt.Errorf("task %s cannot depend on itself", taskID)
		}
		if seen[dep] {
			return fmt.Errorf("task %s: dependency_ids must be unique", taskID)
		}
		seen[dep] = true
	}
	return nil
}
