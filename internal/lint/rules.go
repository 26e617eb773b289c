package lint

import (
	"fmt"
	"sort"
	"time"
)

// CheckFragmentation flags "swiss cheese" days: gaps between consecutive
// events that are too short to be useful focus time but too long to ignore.
func CheckFragmentation(events []Event) []Diagnostic {
	var diagnostics []Diagnostic
	sorted := byStart(events)
	for i := 0; i+1 < len(sorted); i++ {
		current, next := sorted[i], sorted[i+1]
		gap := next.StartTime.Sub(current.EndTime).Seconds() / 60
		if gap >= 15 && gap <= 45 {
			diagnostics = append(diagnostics, Diagnostic{
				Code:     CodeFragmentation,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Swiss Cheese Gap: %dm", int(gap)),
				Start:    current.EndTime,
				End:      timePtr(next.StartTime),
				EventID:  current.ID,
			})
		}
	}
	return diagnostics
}

// CheckOverlaps flags events that start before the running end of everything
// scheduled so far. Tracking the max end (not just the previous event) catches
// an event buried entirely inside a longer one.
func CheckOverlaps(events []Event) []Diagnostic {
	var diagnostics []Diagnostic
	sorted := byStart(events)
	if len(sorted) < 2 {
		return diagnostics
	}
	activeEnd := sorted[0].EndTime
	for _, event := range sorted[1:] {
		if event.StartTime.Before(activeEnd) {
			end := event.EndTime
			if activeEnd.Before(end) {
				end = activeEnd
			}
			diagnostics = append(diagnostics, Diagnostic{
				Code:     CodeOverlap,
				Severity: SeverityError,
				Message:  "Schedule overlap detected",
				Start:    event.StartTime,
				End:      timePtr(end),
				EventID:  event.ID,
			})
		}
		if event.EndTime.After(activeEnd) {
			activeEnd = event.EndTime
		}
	}
	return diagnostics
}

// CheckDeadlineRisk inspects events that carry both a deadline and an
// estimate. An event ending at or past its deadline is an error; otherwise the
// free minutes between the event's end and the deadline are swept and compared
// against the work still needed.
func CheckDeadlineRisk(events []Event) []Diagnostic {
	var diagnostics []Diagnostic
	sorted := byStart(events)
	for _, event := range sorted {
		if event.Deadline == nil || event.EstimatedDurationMinutes == nil {
			continue
		}
		deadline := *event.Deadline
		if !event.EndTime.Before(deadline) {
			diagnostics = append(diagnostics, Diagnostic{
				Code:     CodeDeadlineRisk,
				Severity: SeverityError,
				Message:  "Task is scheduled past its deadline",
				Start:    event.StartTime,
				End:      timePtr(event.EndTime),
				EventID:  event.ID,
			})
			continue
		}
		freeMinutes := freeMinutesBefore(sorted, event, deadline)
		elapsed := int(event.EndTime.Sub(event.StartTime).Seconds()) / 60
		remainingNeeded := *event.EstimatedDurationMinutes - elapsed
		if remainingNeeded <= 0 {
			continue
		}
		if freeMinutes < remainingNeeded {
			suggestedStart := deadline.Add(-time.Duration(*event.EstimatedDurationMinutes) * time.Minute)
			diagnostics = append(diagnostics, Diagnostic{
				Code:     CodeDeadlineRisk,
				Severity: SeverityWarning,
				Message:  "Insufficient free time before deadline",
				Start:    event.EndTime,
				End:      timePtr(deadline),
				EventID:  event.ID,
				Hint: fmt.Sprintf("Need %dm more before the deadline; consider reserving %s - %s",
					remainingNeeded, suggestedStart.Format(time.RFC3339), deadline.Format(time.RFC3339)),
			})
		}
	}
	return diagnostics
}

// freeMinutesBefore sweeps a pointer from the event's end toward the deadline,
// accumulating gaps not covered by other events.
func freeMinutesBefore(sorted []Event, event Event, deadline time.Time) int {
	free := 0
	pointer := event.EndTime
	for _, other := range sorted {
		if other.ID == event.ID {
			continue
		}
		if !other.StartTime.Before(deadline) || !other.EndTime.After(pointer) {
			continue
		}
		if other.StartTime.After(pointer) {
			free += int(other.StartTime.Sub(pointer).Seconds()) / 60
		}
		if other.EndTime.After(pointer) {
			pointer = other.EndTime
		}
		if !pointer.Before(deadline) {
			break
		}
	}
	if pointer.Before(deadline) {
		free += int(deadline.Sub(pointer).Seconds()) / 60
	}
	return free
}

// CheckDependencyViolations flags events scheduled before a prerequisite event
// finishes. Dependency ids not matching any known event are ignored.
func CheckDependencyViolations(events []Event) []Diagnostic {
	var diagnostics []Diagnostic
	byID := map[string]Event{}
	for _, event := range events {
		byID[event.ID] = event
	}
	for _, event := range byStart(events) {
		seen := map[string]bool{}
		var depIDs []string
		for _, depID := range event.DependencyIDs {
			if !seen[depID] {
				seen[depID] = true
				depIDs = append(depIDs, depID)
			}
		}
		sort.Strings(depIDs)
		for _, depID := range depIDs {
			dep, ok := byID[depID]
			if !ok {
				continue
			}
			if event.StartTime.Before(dep.EndTime) {
				diagnostics = append(diagnostics, Diagnostic{
					Code:     CodeDependencyViolation,
					Severity: SeverityError,
					Message:  fmt.Sprintf("Task scheduled before prerequisite '%s' completes", depID),
					Start:    event.StartTime,
					End:      timePtr(dep.EndTime),
					EventID:  event.ID,
				})
			}
		}
	}
	return diagnostics
}

const contextWindowSize = 4

// CheckContextSwitching slides a window of four consecutive events and flags
// windows spanning too many projects or tags. Overlapping windows each fire
// on their own.
func CheckContextSwitching(events []Event) []Diagnostic {
	var diagnostics []Diagnostic
	sorted := byStart(events)
	for i := 0; i+contextWindowSize <= len(sorted); i++ {
		window := sorted[i : i+contextWindowSize]
		projects := map[string]bool{}
		tags := map[string]bool{}
		for _, event := range window {
			if event.ProjectID != "" {
				projects[event.ProjectID] = true
			}
			for _, tag := range event.Tags {
				tags[tag] = true
			}
		}
		if len(projects) >= 3 || len(tags) >= 6 {
			diagnostics = append(diagnostics, Diagnostic{
				Code:     CodeContextSwitching,
				Severity: SeverityWarning,
				Message:  "Excessive context switching across projects/tags",
				Start:    window[0].StartTime,
				End:      timePtr(window[contextWindowSize-1].EndTime),
				EventID:  window[0].ID,
			})
		}
	}
	return diagnostics
}
