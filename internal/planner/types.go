package planner

import "time"

// Block types used in a Response.
const (
	BlockTypeFixedEvent = "fixed_event"
	BlockTypeTask       = "task"
)

// TaskInput is one schedulable unit of work.
type TaskInput struct {
	ID                       string
	EstimatedDurationMinutes int
	Deadline                 *time.Time
	DependencyIDs            []string
}

// EventInput is an immovable calendar block. The planner never reschedules it;
// it only consumes capacity.
type EventInput struct {
	ID        string
	StartTime time.Time
	EndTime   time.Time
}

// Request carries everything a single planning run needs. DependencyGraph lets
// the caller inject edges stored outside the tasks themselves; effective
// dependencies are the union of each task's DependencyIDs and graph edges
// keyed by a task id present in Tasks.
type Request struct {
	WindowStart             time.Time
	WindowEnd               time.Time
	FocusHoursStart         int
	FocusHoursEnd           int
	MaxPlannedMinutesPerDay int
	Tasks                   []TaskInput
	FixedEvents             []EventInput
	DependencyGraph         map[string][]string
}

// Block is one contiguous span in the produced plan. Fixed-event blocks echo
// the input; task blocks are allocations (a task may span several blocks).
type Block struct {
	BlockType string
	RefID     string
	Start     time.Time
	End       time.Time
	Rationale string
}

// UnmetTaskWarning reports work the planner could not place.
type UnmetTaskWarning struct {
	TaskID           string
	MinutesUnplanned int
	Reason           string
}

// Response is the complete result of a planning run.
type Response struct {
	Blocks            []Block
	UnmetTaskWarnings []UnmetTaskWarning
}
