// Package lint runs structural diagnostics over a flat set of timed events:
// fragmentation, overlaps, deadline risk, dependency violations and context
// switching. Rules are pure functions; running them twice over the same input
// yields identical output.
package lint

import (
	"sort"
	"time"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Machine-readable diagnostic codes, one per rule.
const (
	CodeFragmentation       = "FRAGMENTATION"
	CodeOverlap             = "OVERLAP"
	CodeDeadlineRisk        = "DEADLINE_RISK"
	CodeDependencyViolation = "DEPENDENCY_VIOLATION"
	CodeContextSwitching    = "CONTEXT_SWITCHING"
)

// Event is the minimal shape the linter needs. Callers adapt richer persisted
// records to it through an explicit conversion; fields the caller does not
// have simply stay at their zero value and the rules that need them skip the
// event.
type Event struct {
	ID                       string
	StartTime                time.Time
	EndTime                  time.Time
	ProjectID                string // empty means no project
	Tags                     []string
	DependencyIDs            []string
	Deadline                 *time.Time
	EstimatedDurationMinutes *int
}

// Diagnostic is one structural issue found by a rule.
type Diagnostic struct {
	Code     string
	Severity Severity
	Message  string
	Start    time.Time
	End      *time.Time
	EventID  string // empty when the issue is not tied to one event
	Hint     string
}

// Summary aggregates a diagnostic list: counts per severity (all severities
// present, zero-filled) and the three highest-priority issues.
type Summary struct {
	SeverityCounts    map[Severity]int
	TopBlockingIssues []Diagnostic
}

// Run executes every rule in fixed order, merges the results sorted by
// (start, code, event id) and summarizes them.
func Run(events []Event) ([]Diagnostic, Summary) {
	var diagnostics []Diagnostic
	diagnostics = append(diagnostics, CheckFragmentation(events)...)
	diagnostics = append(diagnostics, CheckOverlaps(events)...)
	diagnostics = append(diagnostics, CheckDeadlineRisk(events)...)
	diagnostics = append(diagnostics, CheckDependencyViolations(events)...)
	diagnostics = append(diagnostics, CheckContextSwitching(events)...)

	sort.SliceStable(diagnostics, func(i, j int) bool {
		a, b := diagnostics[i], diagnostics[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.EventID < b.EventID
	})
	return diagnostics, Summarize(diagnostics)
}

func severityRank(s Severity) int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// Summarize counts diagnostics per severity and picks the top three blocking
// issues, errors ranked ahead of warnings ahead of infos.
func Summarize(diagnostics []Diagnostic) Summary {
	counts := map[Severity]int{
		SeverityInfo:    0,
		SeverityWarning: 0,
		SeverityError:   0,
	}
	for _, d := range diagnostics {
		counts[d.Severity]++
	}

	ranked := make([]Diagnostic, len(diagnostics))
	copy(ranked, diagnostics)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if ra, rb := severityRank(a.Severity), severityRank(b.Severity); ra != rb {
			return ra < rb
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.EventID < b.EventID
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	return Summary{SeverityCounts: counts, TopBlockingIssues: ranked}
}

// byStart returns a copy of events ordered by start time. The sort is stable
// so rule output stays deterministic for identical start times.
func byStart(events []Event) []Event {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})
	return sorted
}

func timePtr(t time.Time) *time.Time { return &t }
