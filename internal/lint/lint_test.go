package lint_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifeline/internal/lint"
)

func at(hour, min int) time.Time {
	return time.Date(2024, 1, 1, hour, min, 0, 0, time.UTC)
}

func event(id string, sh, sm, eh, em int) lint.Event {
	return lint.Event{ID: id, StartTime: at(sh, sm), EndTime: at(eh, em)}
}

func codes(diagnostics []lint.Diagnostic) []string {
	var out []string
	for _, d := range diagnostics {
		out = append(out, d.Code)
	}
	return out
}

func TestOverlapIsDeterministic(t *testing.T) {
	diagnostics, _ := lint.Run([]lint.Event{
		event("A", 9, 0, 10, 0),
		event("B", 9, 30, 10, 30),
	})
	require.Len(t, diagnostics, 1)
	assert.Equal(t, lint.CodeOverlap, diagnostics[0].Code)
	assert.Equal(t, lint.SeverityError, diagnostics[0].Severity)
	assert.Equal(t, "B", diagnostics[0].EventID)
	assert.Equal(t, at(9, 30), diagnostics[0].Start)
	require.NotNil(t, diagnostics[0].End)
	assert.Equal(t, at(10, 0), *diagnostics[0].End)
}

func TestOverlapTracksActiveEndAcrossContainedEvents(t *testing.T) {
	// C sits entirely inside A; a previous-event-only check would miss it.
	diagnostics := lint.CheckOverlaps([]lint.Event{
		event("A", 9, 0, 12, 0),
		event("B", 9, 30, 10, 0),
		event("C", 10, 30, 11, 0),
	})
	require.Len(t, diagnostics, 2)
	assert.Equal(t, "B", diagnostics[0].EventID)
	assert.Equal(t, "C", diagnostics[1].EventID)
}

func TestNoOverlapForDisjointEvents(t *testing.T) {
	assert.Empty(t, lint.CheckOverlaps([]lint.Event{
		event("A", 9, 0, 10, 0),
		event("B", 10, 0, 11, 0),
		event("C", 12, 0, 13, 0),
	}))
}

func TestFragmentationGapDetected(t *testing.T) {
	diagnostics, _ := lint.Run([]lint.Event{
		event("A", 9, 0, 9, 30),
		event("B", 9, 50, 10, 30),
	})
	require.Len(t, diagnostics, 1)
	d := diagnostics[0]
	assert.Equal(t, lint.CodeFragmentation, d.Code)
	assert.Equal(t, lint.SeverityWarning, d.Severity)
	assert.Equal(t, "Swiss Cheese Gap: 20m", d.Message)
	assert.Equal(t, "A", d.EventID)
	assert.Equal(t, at(9, 30), d.Start)
}

func TestFragmentationBoundaries(t *testing.T) {
	// 14m and 46m gaps are both fine.
	assert.Empty(t, lint.CheckFragmentation([]lint.Event{
		event("A", 9, 0, 9, 30),
		event("B", 9, 44, 10, 0),
		event("C", 10, 46, 11, 0),
	}))
	// exactly 15m and exactly 45m both fire
	assert.Len(t, lint.CheckFragmentation([]lint.Event{
		event("A", 9, 0, 9, 30),
		event("B", 9, 45, 10, 0),
	}), 1)
	assert.Len(t, lint.CheckFragmentation([]lint.Event{
		event("A", 9, 0, 9, 30),
		event("B", 10, 15, 11, 0),
	}), 1)
}

func TestDeadlineRiskErrorPastDeadline(t *testing.T) {
	deadline := at(10, 0)
	est := 90
	diagnostics := lint.CheckDeadlineRisk([]lint.Event{{
		ID:                       "late",
		StartTime:                at(9, 0),
		EndTime:                  at(10, 30),
		Deadline:                 &deadline,
		EstimatedDurationMinutes: &est,
	}})
	require.Len(t, diagnostics, 1)
	assert.Equal(t, lint.SeverityError, diagnostics[0].Severity)
	assert.Equal(t, "Task is scheduled past its deadline", diagnostics[0].Message)
}

func TestDeadlineRiskInsufficientFreeTime(t *testing.T) {
	deadline := at(10, 0)
	est := 90
	diagnostics := lint.CheckDeadlineRisk([]lint.Event{
		{
			ID:                       "important",
			StartTime:                at(9, 0),
			EndTime:                  at(9, 30),
			Deadline:                 &deadline,
			EstimatedDurationMinutes: &est,
		},
		event("busy", 9, 30, 9, 55),
	})
	require.Len(t, diagnostics, 1)
	d := diagnostics[0]
	assert.Equal(t, lint.SeverityWarning, d.Severity)
	assert.Equal(t, "Insufficient free time before deadline", d.Message)
	assert.Equal(t, at(9, 30), d.Start)
	require.NotNil(t, d.End)
	assert.Equal(t, deadline, *d.End)
	assert.Contains(t, d.Hint, "60m")
}

func TestDeadlineRiskSilentWhenEnoughFreeTime(t *testing.T) {
	deadline := at(12, 0)
	est := 60
	assert.Empty(t, lint.CheckDeadlineRisk([]lint.Event{{
		ID:                       "roomy",
		StartTime:                at(9, 0),
		EndTime:                  at(9, 30),
		Deadline:                 &deadline,
		EstimatedDurationMinutes: &est,
	}}))
}

func TestDependencyViolationDetected(t *testing.T) {
	events := []lint.Event{
		event("prep", 9, 0, 10, 0),
		{ID: "execute", StartTime: at(9, 30), EndTime: at(10, 30), DependencyIDs: []string{"prep"}},
	}
	diagnostics := lint.CheckDependencyViolations(events)
	require.Len(t, diagnostics, 1)
	d := diagnostics[0]
	assert.Equal(t, "Task scheduled before prerequisite 'prep' completes", d.Message)
	assert.Equal(t, "execute", d.EventID)
	assert.Equal(t, at(9, 30), d.Start)
	require.NotNil(t, d.End)
	assert.Equal(t, at(10, 0), *d.End)
}

func TestDependencyViolationIgnoresUnknownIDs(t *testing.T) {
	assert.Empty(t, lint.CheckDependencyViolations([]lint.Event{
		{ID: "solo", StartTime: at(9, 0), EndTime: at(10, 0), DependencyIDs: []string{"missing"}},
	}))
}

func TestContextSwitchingWindowFires(t *testing.T) {
	events := []lint.Event{
		{ID: "A", StartTime: at(9, 0), EndTime: at(9, 20), ProjectID: "p1", Tags: []string{"one", "two"}},
		{ID: "B", StartTime: at(9, 20), EndTime: at(9, 40), ProjectID: "p2", Tags: []string{"three", "four"}},
		{ID: "C", StartTime: at(9, 40), EndTime: at(10, 0), ProjectID: "p3", Tags: []string{"five"}},
		{ID: "D", StartTime: at(10, 0), EndTime: at(10, 20), ProjectID: "p4", Tags: []string{"six"}},
	}
	diagnostics := lint.CheckContextSwitching(events)
	require.Len(t, diagnostics, 1)
	d := diagnostics[0]
	assert.Equal(t, "A", d.EventID)
	assert.Equal(t, at(9, 0), d.Start)
	require.NotNil(t, d.End)
	assert.Equal(t, at(10, 20), *d.End)
}

func TestContextSwitchingNeedsFourEvents(t *testing.T) {
	assert.Empty(t, lint.CheckContextSwitching([]lint.Event{
		{ID: "A", StartTime: at(9, 0), EndTime: at(9, 20), ProjectID: "p1"},
		{ID: "B", StartTime: at(9, 20), EndTime: at(9, 40), ProjectID: "p2"},
		{ID: "C", StartTime: at(9, 40), EndTime: at(10, 0), ProjectID: "p3"},
	}))
}

func TestRunIsIdempotent(t *testing.T) {
	events := []lint.Event{
		event("A", 9, 0, 10, 0),
		event("B", 9, 30, 10, 30),
		event("C", 10, 45, 11, 0),
	}
	first, firstSummary := lint.Run(events)
	second, secondSummary := lint.Run(events)
	assert.Equal(t, first, second)
	assert.Equal(t, firstSummary, secondSummary)
}

func TestSummaryCountsAndTopIssues(t *testing.T) {
	diagnostics, summary := lint.Run([]lint.Event{
		event("A", 9, 0, 10, 0),
		event("B", 9, 30, 10, 30),
		event("C", 10, 45, 11, 0),
	})
	assert.GreaterOrEqual(t, summary.SeverityCounts[lint.SeverityError], 1)
	assert.Contains(t, summary.SeverityCounts, lint.SeverityInfo)
	require.NotEmpty(t, summary.TopBlockingIssues)
	// errors outrank warnings no matter the merged order
	assert.Equal(t, lint.SeverityError, summary.TopBlockingIssues[0].Severity)
	assert.LessOrEqual(t, len(summary.TopBlockingIssues), 3)
	assert.NotEmpty(t, diagnostics)
}

func TestMergedDiagnosticsSortedByStartThenCode(t *testing.T) {
	diagnostics, _ := lint.Run([]lint.Event{
		event("A", 9, 0, 10, 0),
		event("B", 9, 30, 10, 30),
		{ID: "late", StartTime: at(11, 0), EndTime: at(11, 30), DependencyIDs: []string{"B"}},
	})
	for i := 0; i+1 < len(diagnostics); i++ {
		a, b := diagnostics[i], diagnostics[i+1]
		require.False(t, b.Start.Before(a.Start), "diagnostics out of order at %d", i)
		if a.Start.Equal(b.Start) {
			require.LessOrEqual(t, a.Code, b.Code)
		}
	}
}

func TestMinimalEventShapeTriggersNoOptionalRules(t *testing.T) {
	diagnostics, summary := lint.Run([]lint.Event{event("only", 9, 0, 10, 0)})
	assert.Empty(t, diagnostics)
	assert.Equal(t, 0, summary.SeverityCounts[lint.SeverityError])
	assert.Empty(t, summary.TopBlockingIssues)
}
