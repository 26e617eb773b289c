package domain

// Task status values.
const (
	TaskStatusTodo       = "TODO"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusCompleted  = "COMPLETED"
)

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// Event is a timed calendar block. Fixed events consume planner capacity and
// are never rescheduled.
type Event struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	StartTime string   `json:"start_time" format:"date-time"`
	EndTime   string   `json:"end_time" format:"date-time"`
	IsFixed   bool     `json:"is_fixed"`
	ProjectID *string  `json:"project_id,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	UpdatedAt string   `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID                       string   `json:"id"`
	Content                  string   `json:"content"`
	Tags                     []string `json:"tags"`
	Status                   string   `json:"status" enum:"TODO,IN_PROGRESS,COMPLETED"`
	Deadline                 *string  `json:"deadline,omitempty" format:"date-time"`
	EstimatedDurationMinutes int      `json:"estimated_duration_minutes"`
	ProjectID                *string  `json:"project_id,omitempty"`
	DependencyIDs            []string `json:"dependency_ids"`
	CompletedAt              *string  `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt                string   `json:"created_at" format:"date-time"`
	UpdatedAt                string   `json:"updated_at" format:"date-time"`
}

// TaskDependency is one stored predecessor→successor edge.
type TaskDependency struct {
	PredecessorTaskID string `json:"predecessor_task_id"`
	SuccessorTaskID   string `json:"successor_task_id"`
	CreatedAt         string `json:"created_at" format:"date-time"`
}

// Routine is a stored task template. Expansion into concrete tasks is out of
// scope; only the records are managed.
type Routine struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	TaskTemplate string  `json:"task_template"`
	ProjectID    *string `json:"project_id,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type RecurringRule struct {
	ID        string  `json:"id"`
	RoutineID string  `json:"routine_id"`
	Cadence   string  `json:"cadence"`
	Interval  int     `json:"interval"`
	StartAt   string  `json:"start_at" format:"date-time"`
	EndAt     *string `json:"end_at,omitempty" format:"date-time"`
}

// AuditEntry is one append-only record of a mutation.
type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Action     string `json:"action"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
