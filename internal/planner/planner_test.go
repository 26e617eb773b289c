package planner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifeline/internal/planner"
)

func at(day, hour, min int) time.Time {
	return time.Date(2024, 1, day, hour, min, 0, 0, time.UTC)
}

func deadline(day, hour, min int) *time.Time {
	t := at(day, hour, min)
	return &t
}

func taskBlocks(resp planner.Response, taskID string) []planner.Block {
	var out []planner.Block
	for _, b := range resp.Blocks {
		if b.BlockType == planner.BlockTypeTask && b.RefID == taskID {
			out = append(out, b)
		}
	}
	return out
}

func plannedMinutes(resp planner.Response, taskID string) int {
	total := 0
	for _, b := range taskBlocks(resp, taskID) {
		total += int(b.End.Sub(b.Start).Minutes())
	}
	return total
}

func TestCapacityOverflowEmitsWarningForSecondTask(t *testing.T) {
	resp, err := planner.BuildPlan(planner.Request{
		WindowStart:             at(1, 9, 0),
		WindowEnd:               at(1, 17, 0),
		FocusHoursStart:         9,
		FocusHoursEnd:           17,
		MaxPlannedMinutesPerDay: 180,
		Tasks: []planner.TaskInput{
			{ID: "task-a", EstimatedDurationMinutes: 120, Deadline: deadline(1, 16, 0)},
			{ID: "task-b", EstimatedDurationMinutes: 120, Deadline: deadline(1, 16, 0)},
		},
	})
	require.NoError(t, err)

	var refs []string
	for _, b := range resp.Blocks {
		refs = append(refs, b.RefID)
	}
	assert.Equal(t, []string{"task-a", "task-b"}, refs)

	require.Len(t, resp.UnmetTaskWarnings, 1)
	assert.Equal(t, "task-b", resp.UnmetTaskWarnings[0].TaskID)
	assert.Equal(t, 60, resp.UnmetTaskWarnings[0].MinutesUnplanned)
	assert.Equal(t, "Insufficient capacity before strict deadline.", resp.UnmetTaskWarnings[0].Reason)
}

func TestDependencyGatingOrdersBlocksAndWarnsOnDeadline(t *testing.T) {
	resp, err := planner.BuildPlan(planner.Request{
		WindowStart:             at(1, 9, 0),
		WindowEnd:               at(1, 12, 0),
		FocusHoursStart:         9,
		FocusHoursEnd:           12,
		MaxPlannedMinutesPerDay: 180,
		Tasks: []planner.TaskInput{
			{ID: "prepare", EstimatedDurationMinutes: 120, Deadline: deadline(1, 12, 0)},
			{ID: "ship", EstimatedDurationMinutes: 120, Deadline: deadline(1, 11, 30), DependencyIDs: []string{"prepare"}},
		},
		DependencyGraph: map[string][]string{"ship": {"prepare"}},
	})
	require.NoError(t, err)

	var refs []string
	for _, b := range resp.Blocks {
		refs = append(refs, b.RefID)
	}
	assert.Equal(t, []string{"prepare", "ship"}, refs)

	require.Len(t, resp.UnmetTaskWarnings, 1)
	assert.Equal(t, "ship", resp.UnmetTaskWarnings[0].TaskID)
	assert.Equal(t, "Insufficient capacity before strict deadline.", resp.UnmetTaskWarnings[0].Reason)
}

func TestFixedEventAppearsFirstAndBlocksCapacity(t *testing.T) {
	resp, err := planner.BuildPlan(planner.Request{
		WindowStart:             at(1, 9, 0),
		WindowEnd:               at(2, 17, 0),
		FocusHoursStart:         9,
		FocusHoursEnd:           17,
		MaxPlannedMinutesPerDay: 240,
		Tasks: []planner.TaskInput{
			{ID: "urgent", EstimatedDurationMinutes: 300, Deadline: deadline(1, 11, 0)},
			{ID: "normal", EstimatedDurationMinutes: 120, Deadline: deadline(2, 17, 0)},
		},
		FixedEvents: []planner.EventInput{
			{ID: "meeting", StartTime: at(1, 9, 0), EndTime: at(1, 10, 0)},
		},
	})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Blocks)
	assert.Equal(t, planner.BlockTypeFixedEvent, resp.Blocks[0].BlockType)
	assert.Equal(t, "meeting", resp.Blocks[0].RefID)

	var urgentWarning *planner.UnmetTaskWarning
	for i := range resp.UnmetTaskWarnings {
		if resp.UnmetTaskWarnings[i].TaskID == "urgent" {
			urgentWarning = &resp.UnmetTaskWarnings[i]
		}
	}
	require.NotNil(t, urgentWarning)
	assert.Equal(t, "Insufficient capacity before strict deadline.", urgentWarning.Reason)
}

func TestUnknownDependencyBlocksTask(t *testing.T) {
	resp, err := planner.BuildPlan(planner.Request{
		WindowStart:             at(1, 9, 0),
		WindowEnd:               at(1, 17, 0),
		FocusHoursStart:         9,
		FocusHoursEnd:           17,
		MaxPlannedMinutesPerDay: 480,
		Tasks: []planner.TaskInput{
			{ID: "stuck", EstimatedDurationMinutes: 60, DependencyIDs: []string{"ghost"}},
		},
	})
	require.NoError(t, err)

	assert.Empty(t, resp.Blocks)
	require.Len(t, resp.UnmetTaskWarnings, 1)
	assert.Equal(t, "Blocked by unmet dependencies: ghost", resp.UnmetTaskWarnings[0].Reason)
	assert.Equal(t, 60, resp.UnmetTaskWarnings[0].MinutesUnplanned)
}

func TestGraphEdgesForUnknownTasksAreIgnored(t *testing.T) {
	resp, err := planner.BuildPlan(planner.Request{
		WindowStart:             at(1, 9, 0),
		WindowEnd:               at(1, 17, 0),
		FocusHoursStart:         9,
		FocusHoursEnd:           17,
		MaxPlannedMinutesPerDay: 480,
		Tasks: []planner.TaskInput{
			{ID: "solo", EstimatedDurationMinutes: 30},
		},
		DependencyGraph: map[string][]string{"other": {"solo"}},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.UnmetTaskWarnings)
	assert.Equal(t, 30, plannedMinutes(resp, "solo"))
}

func TestCapacityConservation(t *testing.T) {
	resp, err := planner.BuildPlan(planner.Request{
		WindowStart:             at(1, 9, 0),
		WindowEnd:               at(3, 17, 0),
		FocusHoursStart:         9,
		FocusHoursEnd:           17,
		MaxPlannedMinutesPerDay: 200,
		Tasks: []planner.TaskInput{
			{ID: "alpha", EstimatedDurationMinutes: 250},
			{ID: "beta", EstimatedDurationMinutes: 180, Deadline: deadline(2, 12, 0)},
			{ID: "gamma", EstimatedDurationMinutes: 900},
		},
		FixedEvents: []planner.EventInput{
			{ID: "standup", StartTime: at(1, 9, 0), EndTime: at(1, 9, 30)},
			{ID: "review", StartTime: at(2, 14, 0), EndTime: at(2, 15, 0)},
		},
	})
	require.NoError(t, err)

	unplanned := map[string]int{}
	for _, w := range resp.UnmetTaskWarnings {
		unplanned[w.TaskID] = w.MinutesUnplanned
	}
	for _, tc := range []struct {
		id       string
		estimate int
	}{{"alpha", 250}, {"beta", 180}, {"gamma", 900}} {
		assert.Equal(t, tc.estimate, plannedMinutes(resp, tc.id)+unplanned[tc.id], "task %s", tc.id)
	}
}

func TestNoDoubleBooking(t *testing.T) {
	resp, err := planner.BuildPlan(planner.Request{
		WindowStart:             at(1, 9, 0),
		WindowEnd:               at(2, 17, 0),
		FocusHoursStart:         9,
		FocusHoursEnd:           17,
		MaxPlannedMinutesPerDay: 300,
		Tasks: []planner.TaskInput{
			{ID: "one", EstimatedDurationMinutes: 90},
			{ID: "two", EstimatedDurationMinutes: 240},
			{ID: "three", EstimatedDurationMinutes: 120, Deadline: deadline(1, 15, 0)},
		},
		FixedEvents: []planner.EventInput{
			{ID: "lunch", StartTime: at(1, 12, 0), EndTime: at(1, 13, 0)},
		},
	})
	require.NoError(t, err)

	for i, a := range resp.Blocks {
		for _, b := range resp.Blocks[i+1:] {
			overlap := a.Start.Before(b.End) && b.Start.Before(a.End)
			assert.False(t, overlap, "blocks overlap: %v %v", a, b)
		}
	}
}

func TestValidateRejectsMalformedRequests(t *testing.T) {
	base := planner.Request{
		WindowStart:             at(1, 9, 0),
		WindowEnd:               at(1, 17, 0),
		FocusHoursStart:         9,
		FocusHoursEnd:           17,
		MaxPlannedMinutesPerDay: 120,
	}

	bad := base
	bad.WindowEnd = bad.WindowStart
	_, err := planner.BuildPlan(bad)
	assert.ErrorContains(t, err, "window_end")

	bad = base
	bad.MaxPlannedMinutesPerDay = 0
	_, err = planner.BuildPlan(bad)
	assert.ErrorContains(t, err, "max_planned_minutes_per_day")

	bad = base
	bad.Tasks = []planner.TaskInput{{ID: "x", EstimatedDurationMinutes: 0}}
	_, err = planner.BuildPlan(bad)
	assert.ErrorContains(t, err, "estimated_duration_minutes")

	bad = base
	bad.Tasks = []planner.TaskInput{{ID: "x", EstimatedDurationMinutes: 10, DependencyIDs: []string{"x"}}}
	_, err = planner.BuildPlan(bad)
	assert.ErrorContains(t, err, "depend on itself")

	bad = base
	bad.Tasks = []planner.TaskInput{{ID: "x", EstimatedDurationMinutes: 10, DependencyIDs: []string{"y", "y"}}}
	_, err = planner.BuildPlan(bad)
	assert.ErrorContains(t, err, "unique")

	bad = base
	bad.FocusHoursStart = 24
	_, err = planner.BuildPlan(bad)
	assert.ErrorContains(t, err, "focus_hours_start")
}

func TestFixedEventOutsideWindowIsStillEchoed(t *testing.T) {
	resp, err := planner.BuildPlan(planner.Request{
		WindowStart:             at(1, 9, 0),
		WindowEnd:               at(1, 17, 0),
		FocusHoursStart:         9,
		FocusHoursEnd:           17,
		MaxPlannedMinutesPerDay: 60,
		FixedEvents: []planner.EventInput{
			{ID: "offsite", StartTime: at(5, 9, 0), EndTime: at(5, 10, 0)},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Blocks, 1)
	assert.Equal(t, planner.BlockTypeFixedEvent, resp.Blocks[0].BlockType)
}
