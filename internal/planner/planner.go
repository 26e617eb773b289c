// Package planner implements the capacity-constrained greedy planner: it fits
// task work into free focus slots around fixed events, honoring deadlines,
// dependency order and a per-day minute budget. BuildPlan is a pure function
// of its request; it never mutates caller state.
package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"lifeline/internal/interval"
)

// effectiveDependencies unions each task's own dependency ids with graph edges
// keyed by a known task id. Predecessor ids are deliberately not filtered:
// an unknown predecessor keeps its task out of the ready set forever, which the
// no-progress rule then surfaces as an unmet-dependency warning.
func effectiveDependencies(tasks []TaskInput, graph map[string][]string) map[string]map[string]bool {
	known := map[string]bool{}
	for _, task := range tasks {
		known[task.ID] = true
	}
	deps := map[string]map[string]bool{}
	for _, task := range tasks {
		set := map[string]bool{}
		for _, dep := range task.DependencyIDs {
			set[dep] = true
		}
		deps[task.ID] = set
	}
	for taskID, predecessors := range graph {
		if !known[taskID] {
			continue
		}
		for _, pred := range predecessors {
			deps[taskID][pred] = true
		}
	}
	return deps
}

func fixedEventBlocks(events []EventInput) []Block {
	blocks := make([]Block, 0, len(events))
	for _, event := range sortEvents(events) {
		blocks = append(blocks, Block{
			BlockType: BlockTypeFixedEvent,
			RefID:     event.ID,
			Start:     event.StartTime,
			End:       event.EndTime,
			Rationale: "Fixed event blocks planning capacity during this time.",
		})
	}
	return blocks
}

// BuildPlan runs the greedy allocator. Infeasibility is never an error: tasks
// the planner cannot place come back as UnmetTaskWarnings and the response is
// always complete.
func BuildPlan(r Request) (Response, error) {
	if err := r.Validate(); err != nil {
		return Response{}, err
	}

	deps := effectiveDependencies(r.Tasks, r.DependencyGraph)
	slotsByDay := buildDailySlots(r)

	days := make([]time.Time, 0, len(slotsByDay))
	for day := range slotsByDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	dayRemaining := map[time.Time]int{}
	for day, slots := range slotsByDay {
		available := 0
		for _, slot := range slots {
			available += slot.Minutes()
		}
		if available > r.MaxPlannedMinutesPerDay {
			available = r.MaxPlannedMinutesPerDay
		}
		dayRemaining[day] = available
	}

	taskRemaining := map[string]int{}
	for _, task := range r.Tasks {
		taskRemaining[task.ID] = task.EstimatedDurationMinutes
	}
	completed := map[string]bool{}
	blocks := fixedEventBlocks(r.FixedEvents)
	var warnings []UnmetTaskWarning

	for {
		var ready []TaskInput
		for _, task := range r.Tasks {
			if taskRemaining[task.ID] > 0 && subsetOf(deps[task.ID], completed) {
				ready = append(ready, task)
			}
		}
		// Earlier deadlines first; missing deadlines sort last, ties break on id.
		sort.Slice(ready, func(i, j int) bool {
			di, dj := deadlineOrMax(ready[i]), deadlineOrMax(ready[j])
			if !di.Equal(dj) {
				return di.Before(dj)
			}
			return ready[i].ID < ready[j].ID
		})
		if len(ready) == 0 {
			break
		}

		anyProgress := false
		for _, task := range ready {
			remaining := taskRemaining[task.ID]
			for _, day := range days {
				if remaining <= 0 {
					break
				}
				if dayRemaining[day] <= 0 {
					continue
				}
				var updated []interval.Interval
				for _, slot := range slotsByDay[day] {
					if remaining <= 0 || dayRemaining[day] <= 0 {
						updated = append(updated, slot)
						continue
					}
					candidateEnd := slot.End
					if task.Deadline != nil && task.Deadline.Before(candidateEnd) {
						candidateEnd = *task.Deadline
					}
					if !candidateEnd.After(slot.Start) {
						updated = append(updated, slot)
						continue
					}
					usable := interval.Interval{Start: slot.Start, End: candidateEnd}.Minutes()
					allocatable := min3(usable, remaining, dayRemaining[day])
					if allocatable <= 0 {
						updated = append(updated, slot)
						continue
					}
					blockEnd := slot.Start.Add(time.Duration(allocatable) * time.Minute)
					blocks = append(blocks, Block{
						BlockType: BlockTypeTask,
						RefID:     task.ID,
						Start:     slot.Start,
						End:       blockEnd,
						Rationale: fmt.Sprintf("Scheduled in earliest available focus slot; %d minutes remain afterward.", remaining-allocatable),
					})
					anyProgress = true
					remaining -= allocatable
					dayRemaining[day] -= allocatable
					if blockEnd.Before(slot.End) {
						updated = append(updated, interval.Interval{Start: blockEnd, End: slot.End})
					}
				}
				slotsByDay[day] = updated
			}
			taskRemaining[task.ID] = remaining
			if remaining == 0 {
				completed[task.ID] = true
			}
		}
		// Deadlock breaker: leftover tasks whose dependencies can never
		// complete (cycles that slipped past validation, ids referencing
		// unknown tasks) must not spin forever.
		if !anyProgress {
			break
		}
	}

	sortedTasks := make([]TaskInput, len(r.Tasks))
	copy(sortedTasks, r.Tasks)
	sort.Slice(sortedTasks, func(i, j int) bool { return sortedTasks[i].ID < sortedTasks[j].ID })
	for _, task := range sortedTasks {
		remaining := taskRemaining[task.ID]
		if remaining == 0 {
			continue
		}
		var missing []string
		for dep := range deps[task.ID] {
			if !completed[dep] {
				missing = append(missing, dep)
			}
		}
		sort.Strings(missing)
		var reason string
		switch {
		case len(missing) > 0:
			reason = "Blocked by unmet dependencies: " + strings.Join(missing, ", ")
		case task.Deadline != nil && task.Deadline.Before(r.WindowEnd):
			reason = "Insufficient capacity before strict deadline."
		default:
			reason = "Insufficient capacity within planning window."
		}
		warnings = append(warnings, UnmetTaskWarning{
			TaskID:           task.ID,
			MinutesUnplanned: remaining,
			Reason:           reason,
		})
	}

	sort.Slice(blocks, func(i, j int) bool {
		a, b := blocks[i], blocks[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.End.Equal(b.End) {
			return a.End.Before(b.End)
		}
		if a.BlockType != b.BlockType {
			return a.BlockType < b.BlockType
		}
		return a.RefID < b.RefID
	})

	return Response{Blocks: blocks, UnmetTaskWarnings: warnings}, nil
}

// maxDeadline orders tasks without a deadline after every dated one.
var maxDeadline = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

func deadlineOrMax(task TaskInput) time.Time {
	if task.Deadline != nil {
		return *task.Deadline
	}
	return maxDeadline
}

func subsetOf(set map[string]bool, of map[string]bool) bool {
	for member := range set {
		if !of[member] {
			return false
		}
	}
	return true
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
