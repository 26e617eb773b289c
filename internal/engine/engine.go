package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"lifeline/internal/audit"
	"lifeline/internal/config"
	"lifeline/internal/depgraph"
	"lifeline/internal/domain"
	"lifeline/internal/lint"
	"lifeline/internal/metrics"
	"lifeline/internal/planner"
	"lifeline/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Audit   audit.Writer
	Metrics *metrics.Store
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Audit:   audit.Writer{DB: db},
		Metrics: metrics.NewStore(),
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ValidationError is a request or state rule violation surfaced as a 422.
type ValidationError struct {
	Message string
	Details map[string]any
}

func (v ValidationError) Error() string { return v.Message }

// ConflictError reports a clash with existing state, typically a duplicate id.
type ConflictError struct {
	Message string
	Details map[string]any
}

func (c ConflictError) Error() string { return c.Message }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// parseTime accepts RFC 3339 timestamps, with or without an offset. Naive
// values are treated as UTC.
func parseTime(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t, err = time.ParseInLocation("2006-01-02T15:04:05", value, time.UTC)
	}
	if err != nil {
		return time.Time{}, ValidationError{
			Message: fmt.Sprintf("%s must be an ISO 8601 timestamp", field),
			Details: map[string]any{"field": field, "value": value},
		}
	}
	return t, nil
}

// ParseTime is the timestamp parser shared with the transport layer.
func ParseTime(field, value string) (time.Time, error) {
	return parseTime(field, value)
}

// validateDependencyIDs trims and sorts the predecessor list, rejecting blank
// values, duplicates and self-references.
func validateDependencyIDs(taskID string, ids []string) ([]string, error) {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, ValidationError{Message: "dependency_ids must not contain empty values"}
		}
		if seen[id] {
			return nil, ValidationError{Message: "dependency_ids must be unique"}
		}
		seen[id] = true
		out = append(out, id)
	}
	if seen[taskID] {
		return nil, ValidationError{Message: "task cannot depend on itself"}
	}
	sort.Strings(out)
	return out, nil
}

func (e Engine) CreateProject(ctx context.Context, id, name, description string) (domain.Project, error) {
	if name == "" {
		return domain.Project{}, ValidationError{Message: "name is required", Details: map[string]any{"field": "name"}}
	}
	if id == "" {
		id = uuid.NewString()
	}
	now := e.nowRFC3339()
	p := domain.Project{ID: id, Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	if err := e.Repo.InsertProject(ctx, p); err != nil {
		if isUniqueViolation(err) {
			return domain.Project{}, ConflictError{Message: "Project with this id already exists", Details: map[string]any{"resource": "project", "id": id}}
		}
		return domain.Project{}, err
	}
	if err := e.Audit.AppendDB(ctx, "project.created", "project", p.ID, audit.Payload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) UpdateProject(ctx context.Context, id string, name, description *string) (domain.Project, error) {
	if name != nil && *name == "" {
		return domain.Project{}, ValidationError{Message: "name must not be empty", Details: map[string]any{"field": "name"}}
	}
	if err := e.Repo.UpdateProject(ctx, id, name, description, e.nowRFC3339()); err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.Audit.AppendDB(ctx, "project.updated", "project", id, nil); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) DeleteProject(ctx context.Context, id string) error {
	if err := e.Repo.DeleteProject(ctx, id); err != nil {
		return err
	}
	return e.Audit.AppendDB(ctx, "project.deleted", "project", id, nil)
}

// EventCreateOptions carries the writable fields of an event.
type EventCreateOptions struct {
	ID        string
	Content   string
	Tags      []string
	StartTime string
	EndTime   string
	IsFixed   bool
	ProjectID *string
}

func (e Engine) CreateEvent(ctx context.Context, opts EventCreateOptions) (domain.Event, error) {
	if opts.Content == "" {
		return domain.Event{}, ValidationError{Message: "content is required", Details: map[string]any{"field": "content"}}
	}
	start, err := parseTime("start_time", opts.StartTime)
	if err != nil {
		return domain.Event{}, err
	}
	end, err := parseTime("end_time", opts.EndTime)
	if err != nil {
		return domain.Event{}, err
	}
	if !end.After(start) {
		return domain.Event{}, ValidationError{Message: "end_time must be after start_time", Details: map[string]any{"field": "end_time"}}
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Tags == nil {
		opts.Tags = []string{}
	}
	now := e.nowRFC3339()
	ev := domain.Event{
		ID:        opts.ID,
		Content:   opts.Content,
		Tags:      opts.Tags,
		StartTime: start.UTC().Format(time.RFC3339),
		EndTime:   end.UTC().Format(time.RFC3339),
		IsFixed:   opts.IsFixed,
		ProjectID: opts.ProjectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.Repo.InsertEvent(ctx, ev); err != nil {
		if isUniqueViolation(err) {
			return domain.Event{}, ConflictError{Message: "Event with this id already exists", Details: map[string]any{"resource": "event", "id": ev.ID}}
		}
		return domain.Event{}, err
	}
	if err := e.Audit.AppendDB(ctx, "event.created", "event", ev.ID, audit.Payload{"start_time": ev.StartTime, "end_time": ev.EndTime}); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

func (e Engine) UpdateEvent(ctx context.Context, id string, opts EventCreateOptions) (domain.Event, error) {
	existing, err := e.Repo.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	if opts.Content == "" {
		return domain.Event{}, ValidationError{Message: "content is required", Details: map[string]any{"field": "content"}}
	}
	start, err := parseTime("start_time", opts.StartTime)
	if err != nil {
		return domain.Event{}, err
	}
	end, err := parseTime("end_time", opts.EndTime)
	if err != nil {
		return domain.Event{}, err
	}
	if !end.After(start) {
		return domain.Event{}, ValidationError{Message: "end_time must be after start_time", Details: map[string]any{"field": "end_time"}}
	}
	if opts.Tags == nil {
		opts.Tags = []string{}
	}
	existing.Content = opts.Content
	existing.Tags = opts.Tags
	existing.StartTime = start.UTC().Format(time.RFC3339)
	existing.EndTime = end.UTC().Format(time.RFC3339)
	existing.IsFixed = opts.IsFixed
	existing.ProjectID = opts.ProjectID
	existing.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateEvent(ctx, existing); err != nil {
		return domain.Event{}, err
	}
	if err := e.Audit.AppendDB(ctx, "event.updated", "event", existing.ID, audit.Payload{"start_time": existing.StartTime, "end_time": existing.EndTime}); err != nil {
		return domain.Event{}, err
	}
	return existing, nil
}

func (e Engine) DeleteEvent(ctx context.Context, id string) error {
	if err := e.Repo.DeleteEvent(ctx, id); err != nil {
		return err
	}
	return e.Audit.AppendDB(ctx, "event.deleted", "event", id, nil)
}

// TaskCreateOptions carries the writable fields of a task.
type TaskCreateOptions struct {
	ID                       string
	Content                  string
	Tags                     []string
	Status                   string
	Deadline                 *string
	EstimatedDurationMinutes int
	ProjectID                *string
	DependencyIDs            []string
}

// CreateTask inserts a task and its dependency edges in one transaction.
// Every dependency must name an existing task and the new edges must keep
// the stored graph acyclic.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Content == "" {
		return domain.Task{}, ValidationError{Message: "content is required", Details: map[string]any{"field": "content"}}
	}
	if opts.EstimatedDurationMinutes <= 0 {
		return domain.Task{}, ValidationError{Message: "estimated_duration_minutes must be positive", Details: map[string]any{"field": "estimated_duration_minutes"}}
	}
	if opts.Status == "" {
		opts.Status = domain.TaskStatusTodo
	}
	if !validStatus(opts.Status) {
		return domain.Task{}, ValidationError{Message: fmt.Sprintf("status %s is not valid", opts.Status), Details: map[string]any{"field": "status"}}
	}
	if opts.Deadline != nil {
		deadline, err := parseTime("deadline", *opts.Deadline)
		if err != nil {
			return domain.Task{}, err
		}
		normalized := deadline.UTC().Format(time.RFC3339)
		opts.Deadline = &normalized
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Tags == nil {
		opts.Tags = []string{}
	}
	deps, err := validateDependencyIDs(opts.ID, opts.DependencyIDs)
	if err != nil {
		return domain.Task{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if len(deps) > 0 {
		missing, err := e.Repo.MissingTaskIDsTx(ctx, tx, deps)
		if err != nil {
			return domain.Task{}, err
		}
		if len(missing) > 0 {
			return domain.Task{}, ValidationError{
				Message: "Unknown dependency task ids",
				Details: map[string]any{"dependency_ids": missing},
			}
		}
		edges, err := e.dependencyEdgesTx(ctx, tx, "")
		if err != nil {
			return domain.Task{}, err
		}
		if err := depgraph.Validate(opts.ID, deps, edges); err != nil {
			return domain.Task{}, ValidationError{Message: err.Error()}
		}
	}

	now := e.nowRFC3339()
	t := domain.Task{
		ID:                       opts.ID,
		Content:                  opts.Content,
		Tags:                     opts.Tags,
		Status:                   opts.Status,
		Deadline:                 opts.Deadline,
		EstimatedDurationMinutes: opts.EstimatedDurationMinutes,
		ProjectID:                opts.ProjectID,
		DependencyIDs:            deps,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if t.Status == domain.TaskStatusCompleted {
		completed := now
		t.CompletedAt = &completed
	}
	if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
		if isUniqueViolation(err) {
			return domain.Task{}, ConflictError{Message: "Task with this id already exists", Details: map[string]any{"resource": "task", "id": t.ID}}
		}
		return domain.Task{}, err
	}
	if err := e.Repo.ReplaceTaskDependenciesTx(ctx, tx, t.ID, deps, now); err != nil {
		return domain.Task{}, err
	}
	if err := e.Audit.Append(ctx, tx, "task.created", "task", t.ID, audit.Payload{"dependency_ids": deps}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	if t.DependencyIDs == nil {
		t.DependencyIDs = []string{}
	}
	return t, nil
}

// TaskUpdateOptions uses pointers to distinguish omitted from zero values.
// A non-nil DependencyIDs replaces the full predecessor set.
type TaskUpdateOptions struct {
	Content                  *string
	Tags                     []string
	TagsProvided             bool
	Status                   *string
	Deadline                 *string
	DeadlineProvided         bool
	EstimatedDurationMinutes *int
	ProjectID                *string
	ProjectIDProvided        bool
	DependencyIDs            *[]string
}

// UpdateTask applies field changes and an optional dependency replacement in
// one transaction. The cycle check runs against the stored edge set minus the
// task's current incoming edges, so a failed replacement leaves no partial
// state behind.
func (e Engine) UpdateTask(ctx context.Context, id string, opts TaskUpdateOptions) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Content != nil {
		if *opts.Content == "" {
			return domain.Task{}, ValidationError{Message: "content is required", Details: map[string]any{"field": "content"}}
		}
		t.Content = *opts.Content
	}
	if opts.TagsProvided {
		if opts.Tags == nil {
			opts.Tags = []string{}
		}
		t.Tags = opts.Tags
	}
	if opts.EstimatedDurationMinutes != nil {
		if *opts.EstimatedDurationMinutes <= 0 {
			return domain.Task{}, ValidationError{Message: "estimated_duration_minutes must be positive", Details: map[string]any{"field": "estimated_duration_minutes"}}
		}
		t.EstimatedDurationMinutes = *opts.EstimatedDurationMinutes
	}
	if opts.DeadlineProvided {
		if opts.Deadline != nil {
			deadline, err := parseTime("deadline", *opts.Deadline)
			if err != nil {
				return domain.Task{}, err
			}
			normalized := deadline.UTC().Format(time.RFC3339)
			opts.Deadline = &normalized
		}
		t.Deadline = opts.Deadline
	}
	if opts.ProjectIDProvided {
		t.ProjectID = opts.ProjectID
	}
	if opts.Status != nil {
		if !validStatus(*opts.Status) {
			return domain.Task{}, ValidationError{Message: fmt.Sprintf("status %s is not valid", *opts.Status), Details: map[string]any{"field": "status"}}
		}
		if *opts.Status == domain.TaskStatusCompleted && t.Status != domain.TaskStatusCompleted {
			completed := e.nowRFC3339()
			t.CompletedAt = &completed
		}
		if *opts.Status != domain.TaskStatusCompleted {
			t.CompletedAt = nil
		}
		t.Status = *opts.Status
	}

	if opts.DependencyIDs != nil {
		deps, err := validateDependencyIDs(id, *opts.DependencyIDs)
		if err != nil {
			return domain.Task{}, err
		}
		if len(deps) > 0 {
			missing, err := e.Repo.MissingTaskIDsTx(ctx, tx, deps)
			if err != nil {
				return domain.Task{}, err
			}
			if len(missing) > 0 {
				return domain.Task{}, ValidationError{
					Message: "Unknown dependency task ids",
					Details: map[string]any{"dependency_ids": missing},
				}
			}
			edges, err := e.dependencyEdgesTx(ctx, tx, id)
			if err != nil {
				return domain.Task{}, err
			}
			if err := depgraph.Validate(id, deps, edges); err != nil {
				return domain.Task{}, ValidationError{Message: err.Error()}
			}
		}
		if err := e.Repo.ReplaceTaskDependenciesTx(ctx, tx, id, deps, e.nowRFC3339()); err != nil {
			return domain.Task{}, err
		}
		t.DependencyIDs = deps
	}

	t.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Audit.Append(ctx, tx, "task.updated", "task", t.ID, audit.Payload{"status": t.Status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// ReplaceTaskDependencies swaps the predecessor set of a task, validating
// existence and acyclicity inside the same transaction as the write.
func (e Engine) ReplaceTaskDependencies(ctx context.Context, taskID string, dependencyIDs []string) ([]string, error) {
	deps := dependencyIDs
	t, err := e.UpdateTask(ctx, taskID, TaskUpdateOptions{DependencyIDs: &deps})
	if err != nil {
		return nil, err
	}
	return t.DependencyIDs, nil
}

func (e Engine) DeleteTask(ctx context.Context, id string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTaskTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, "task.deleted", "task", id, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func validStatus(s string) bool {
	switch s {
	case domain.TaskStatusTodo, domain.TaskStatusInProgress, domain.TaskStatusCompleted:
		return true
	}
	return false
}

// dependencyEdgesTx snapshots the stored graph as predecessor → successors,
// excluding edges into excludeSuccessor so a replacement validates against
// the state it is about to write.
func (e Engine) dependencyEdgesTx(ctx context.Context, tx *sql.Tx, excludeSuccessor string) (depgraph.Edges, error) {
	stored, err := e.Repo.AllDependencyEdgesTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	edges := depgraph.Edges{}
	for _, d := range stored {
		if excludeSuccessor != "" && d.SuccessorTaskID == excludeSuccessor {
			continue
		}
		edges[d.PredecessorTaskID] = append(edges[d.PredecessorTaskID], d.SuccessorTaskID)
	}
	return edges, nil
}

// Plan validates and runs an ad-hoc planning request. The request is taken as
// given; callers that allow fields to be omitted fill them from
// PlannerDefaults before calling, so an explicit zero is never rewritten.
func (e Engine) Plan(ctx context.Context, req planner.Request) (planner.Response, error) {
	if err := req.Validate(); err != nil {
		return planner.Response{}, ValidationError{Message: err.Error()}
	}
	started := e.now()
	resp, err := planner.BuildPlan(req)
	if err != nil {
		return planner.Response{}, ValidationError{Message: err.Error()}
	}
	if e.Metrics != nil {
		e.Metrics.ObservePlan(e.now().Sub(started))
	}
	return resp, nil
}

// PlannerDefaults exposes the configured fallback values for plan requests
// that omit focus hours or the daily cap.
func (e Engine) PlannerDefaults() config.PlannerDefaults {
	if e.Config == nil {
		return config.PlannerDefaults{}
	}
	return e.Config.Planner
}

func intOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

// PlanStoredOptions select the window for planning persisted tasks. Nil
// focus-hour and cap fields fall back to the configured planner defaults.
type PlanStoredOptions struct {
	WindowStart             string
	WindowEnd               string
	FocusHoursStart         *int
	FocusHoursEnd           *int
	MaxPlannedMinutesPerDay *int
}

// PlanStored plans the open tasks in the store against its fixed events.
// Dependencies on completed tasks are already satisfied and are dropped
// before the planner sees them.
func (e Engine) PlanStored(ctx context.Context, opts PlanStoredOptions) (planner.Response, error) {
	windowStart, err := parseTime("window_start", opts.WindowStart)
	if err != nil {
		return planner.Response{}, err
	}
	windowEnd, err := parseTime("window_end", opts.WindowEnd)
	if err != nil {
		return planner.Response{}, err
	}

	fixed := true
	events, err := e.Repo.ListEvents(ctx, repo.EventFilters{IsFixed: &fixed})
	if err != nil {
		return planner.Response{}, err
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return planner.Response{}, err
	}
	edges, err := e.Repo.AllDependencyEdges(ctx)
	if err != nil {
		return planner.Response{}, err
	}

	completed := map[string]bool{}
	for _, t := range tasks {
		if t.Status == domain.TaskStatusCompleted {
			completed[t.ID] = true
		}
	}

	defaults := e.PlannerDefaults()
	req := planner.Request{
		WindowStart:             windowStart,
		WindowEnd:               windowEnd,
		FocusHoursStart:         intOr(opts.FocusHoursStart, defaults.FocusHoursStart),
		FocusHoursEnd:           intOr(opts.FocusHoursEnd, defaults.FocusHoursEnd),
		MaxPlannedMinutesPerDay: intOr(opts.MaxPlannedMinutesPerDay, defaults.MaxPlannedMinutesPerDay),
		DependencyGraph:         map[string][]string{},
	}
	for _, t := range tasks {
		if t.Status == domain.TaskStatusCompleted {
			continue
		}
		var deps []string
		for _, d := range t.DependencyIDs {
			if !completed[d] {
				deps = append(deps, d)
			}
		}
		var deadline *time.Time
		if t.Deadline != nil {
			d, err := parseTime("deadline", *t.Deadline)
			if err != nil {
				return planner.Response{}, err
			}
			deadline = &d
		}
		req.Tasks = append(req.Tasks, planner.TaskInput{
			ID:                       t.ID,
			EstimatedDurationMinutes: t.EstimatedDurationMinutes,
			Deadline:                 deadline,
			DependencyIDs:            deps,
		})
	}
	for _, ev := range events {
		start, err := parseTime("start_time", ev.StartTime)
		if err != nil {
			return planner.Response{}, err
		}
		end, err := parseTime("end_time", ev.EndTime)
		if err != nil {
			return planner.Response{}, err
		}
		req.FixedEvents = append(req.FixedEvents, planner.EventInput{ID: ev.ID, StartTime: start, EndTime: end})
	}
	for _, d := range edges {
		if completed[d.PredecessorTaskID] {
			continue
		}
		req.DependencyGraph[d.SuccessorTaskID] = append(req.DependencyGraph[d.SuccessorTaskID], d.PredecessorTaskID)
	}
	return e.Plan(ctx, req)
}

// Lint runs the schedule rules over the given events.
func (e Engine) Lint(ctx context.Context, events []lint.Event) ([]lint.Diagnostic, lint.Summary) {
	started := e.now()
	diags, summary := lint.Run(events)
	if e.Metrics != nil {
		e.Metrics.ObserveLint(e.now().Sub(started))
	}
	return diags, summary
}

// LintStored lints the persisted events, optionally bounded by a start-time
// range. Task-level rules stay silent because stored calendar events carry no
// deadlines or dependencies.
func (e Engine) LintStored(ctx context.Context, startFrom, startTo string) ([]lint.Diagnostic, lint.Summary, error) {
	stored, err := e.Repo.ListEvents(ctx, repo.EventFilters{StartFrom: startFrom, StartTo: startTo})
	if err != nil {
		return nil, lint.Summary{}, err
	}
	var events []lint.Event
	for _, ev := range stored {
		start, err := parseTime("start_time", ev.StartTime)
		if err != nil {
			return nil, lint.Summary{}, err
		}
		end, err := parseTime("end_time", ev.EndTime)
		if err != nil {
			return nil, lint.Summary{}, err
		}
		le := lint.Event{ID: ev.ID, StartTime: start, EndTime: end, Tags: ev.Tags}
		if ev.ProjectID != nil {
			le.ProjectID = *ev.ProjectID
		}
		events = append(events, le)
	}
	diags, summary := e.Lint(ctx, events)
	return diags, summary, nil
}

type RoutineCreateOptions struct {
	ID           string
	Name         string
	TaskTemplate string
	ProjectID    *string
}

func (e Engine) CreateRoutine(ctx context.Context, opts RoutineCreateOptions) (domain.Routine, error) {
	if opts.Name == "" {
		return domain.Routine{}, ValidationError{Message: "name is required", Details: map[string]any{"field": "name"}}
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	now := e.nowRFC3339()
	rt := domain.Routine{
		ID:           opts.ID,
		Name:         opts.Name,
		TaskTemplate: opts.TaskTemplate,
		ProjectID:    opts.ProjectID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.Repo.InsertRoutine(ctx, rt); err != nil {
		if isUniqueViolation(err) {
			return domain.Routine{}, ConflictError{Message: "Routine with this id already exists", Details: map[string]any{"resource": "routine", "id": rt.ID}}
		}
		return domain.Routine{}, err
	}
	if err := e.Audit.AppendDB(ctx, "routine.created", "routine", rt.ID, nil); err != nil {
		return domain.Routine{}, err
	}
	return rt, nil
}

func (e Engine) UpdateRoutine(ctx context.Context, id string, name, taskTemplate *string) (domain.Routine, error) {
	rt, err := e.Repo.GetRoutine(ctx, id)
	if err != nil {
		return domain.Routine{}, err
	}
	if name != nil {
		if *name == "" {
			return domain.Routine{}, ValidationError{Message: "name must not be empty", Details: map[string]any{"field": "name"}}
		}
		rt.Name = *name
	}
	if taskTemplate != nil {
		rt.TaskTemplate = *taskTemplate
	}
	rt.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateRoutine(ctx, rt); err != nil {
		return domain.Routine{}, err
	}
	if err := e.Audit.AppendDB(ctx, "routine.updated", "routine", id, nil); err != nil {
		return domain.Routine{}, err
	}
	return rt, nil
}

func (e Engine) DeleteRoutine(ctx context.Context, id string) error {
	if err := e.Repo.DeleteRoutine(ctx, id); err != nil {
		return err
	}
	return e.Audit.AppendDB(ctx, "routine.deleted", "routine", id, nil)
}

// AddRecurringRule attaches a cadence rule to a routine. Cadence is one of
// daily, weekly or monthly; interval is the multiplier (every N cadences).
func (e Engine) AddRecurringRule(ctx context.Context, routineID, cadence string, interval int, startAt string, endAt *string) (domain.RecurringRule, error) {
	switch cadence {
	case "daily", "weekly", "monthly":
	default:
		return domain.RecurringRule{}, ValidationError{Message: fmt.Sprintf("cadence %s is not valid", cadence), Details: map[string]any{"field": "cadence"}}
	}
	if interval <= 0 {
		interval = 1
	}
	start, err := parseTime("start_at", startAt)
	if err != nil {
		return domain.RecurringRule{}, err
	}
	if endAt != nil {
		end, err := parseTime("end_at", *endAt)
		if err != nil {
			return domain.RecurringRule{}, err
		}
		if !end.After(start) {
			return domain.RecurringRule{}, ValidationError{Message: "end_at must be after start_at", Details: map[string]any{"field": "end_at"}}
		}
	}
	if _, err := e.Repo.GetRoutine(ctx, routineID); err != nil {
		return domain.RecurringRule{}, err
	}
	rule := domain.RecurringRule{
		ID:        uuid.NewString(),
		RoutineID: routineID,
		Cadence:   cadence,
		Interval:  interval,
		StartAt:   start.UTC().Format(time.RFC3339),
		EndAt:     endAt,
	}
	if err := e.Repo.InsertRecurringRule(ctx, rule); err != nil {
		return domain.RecurringRule{}, err
	}
	if err := e.Audit.AppendDB(ctx, "routine.rule_added", "routine", routineID, audit.Payload{"rule_id": rule.ID, "cadence": cadence}); err != nil {
		return domain.RecurringRule{}, err
	}
	return rule, nil
}
