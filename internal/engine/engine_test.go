package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"lifeline/internal/config"
	"lifeline/internal/db"
	"lifeline/internal/domain"
	"lifeline/internal/engine"
	"lifeline/internal/migrate"
	"lifeline/internal/planner"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("lifeline"))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func mustCreateTask(t *testing.T, env testEnv, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.EstimatedDurationMinutes == 0 {
		opts.EstimatedDurationMinutes = 30
	}
	task, err := env.Engine.CreateTask(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create task %s: %v", opts.ID, err)
	}
	return task
}

func TestCreateTaskWithDependencies(t *testing.T) {
	env := newTestEnv(t)
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "a", Content: "First"})
	b := mustCreateTask(t, env, engine.TaskCreateOptions{ID: "b", Content: "Second", DependencyIDs: []string{"a"}})

	if len(b.DependencyIDs) != 1 || b.DependencyIDs[0] != "a" {
		t.Fatalf("unexpected dependency ids: %v", b.DependencyIDs)
	}
	stored, err := env.Engine.Repo.GetTask(env.Ctx, "b")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if len(stored.DependencyIDs) != 1 || stored.DependencyIDs[0] != "a" {
		t.Fatalf("edge not persisted: %v", stored.DependencyIDs)
	}
}

func TestCreateTaskUnknownDependency(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ID: "t1", Content: "Doc", EstimatedDurationMinutes: 30, DependencyIDs: []string{"ghost"},
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Message != "Unknown dependency task ids" {
		t.Fatalf("unexpected message %q", ve.Message)
	}
	missing, ok := ve.Details["dependency_ids"].([]string)
	if !ok || len(missing) != 1 || missing[0] != "ghost" {
		t.Fatalf("unexpected details %v", ve.Details)
	}
	// The task must not be persisted after the rejected create.
	if _, err := env.Engine.Repo.GetTask(env.Ctx, "t1"); err == nil {
		t.Fatalf("task persisted despite validation failure")
	}
}

func TestDuplicateTaskIDConflict(t *testing.T) {
	env := newTestEnv(t)
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "dup", Content: "One"})
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ID: "dup", Content: "Two", EstimatedDurationMinutes: 30})
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if ce.Message != "Task with this id already exists" {
		t.Fatalf("unexpected message %q", ce.Message)
	}
}

func TestUpdateTaskCycleRejectedAtomically(t *testing.T) {
	env := newTestEnv(t)
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "a", Content: "First"})
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "b", Content: "Second", DependencyIDs: []string{"a"}})

	_, err := env.Engine.ReplaceTaskDependencies(env.Ctx, "a", []string{"b"})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if ve.Message != "Adding dependency from b to a creates a cycle" {
		t.Fatalf("unexpected message %q", ve.Message)
	}

	deps, err := env.Engine.Repo.ListTaskDependencies(env.Ctx, "a")
	if err != nil {
		t.Fatalf("list deps: %v", err)
	}
	if len(deps) != 0 {
		t.Fatalf("rejected update mutated edges: %v", deps)
	}
	deps, err = env.Engine.Repo.ListTaskDependencies(env.Ctx, "b")
	if err != nil {
		t.Fatalf("list deps: %v", err)
	}
	if len(deps) != 1 || deps[0] != "a" {
		t.Fatalf("unrelated edges changed: %v", deps)
	}
}

func TestDependencyReplacementSwapsEdgeDirection(t *testing.T) {
	env := newTestEnv(t)
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "a", Content: "First"})
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "b", Content: "Second", DependencyIDs: []string{"a"}})

	// Dropping b's edge first makes the reverse direction legal.
	if _, err := env.Engine.ReplaceTaskDependencies(env.Ctx, "b", nil); err != nil {
		t.Fatalf("clear deps: %v", err)
	}
	deps, err := env.Engine.ReplaceTaskDependencies(env.Ctx, "a", []string{"b"})
	if err != nil {
		t.Fatalf("replace deps: %v", err)
	}
	if len(deps) != 1 || deps[0] != "b" {
		t.Fatalf("unexpected deps: %v", deps)
	}
}

func TestTaskCompletionTimestamps(t *testing.T) {
	env := newTestEnv(t)
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "t", Content: "Work"})

	done := domain.TaskStatusCompleted
	updated, err := env.Engine.UpdateTask(env.Ctx, "t", engine.TaskUpdateOptions{Status: &done})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}
	if *updated.CompletedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected completed_at %q", *updated.CompletedAt)
	}

	todo := domain.TaskStatusTodo
	updated, err = env.Engine.UpdateTask(env.Ctx, "t", engine.TaskUpdateOptions{Status: &todo})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if updated.CompletedAt != nil {
		t.Fatalf("completed_at should clear on reopen, got %v", *updated.CompletedAt)
	}
}

func TestDeleteTaskRemovesEdges(t *testing.T) {
	env := newTestEnv(t)
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "a", Content: "First"})
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "b", Content: "Second", DependencyIDs: []string{"a"}})

	if err := env.Engine.DeleteTask(env.Ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	deps, err := env.Engine.Repo.ListTaskDependencies(env.Ctx, "b")
	if err != nil {
		t.Fatalf("list deps: %v", err)
	}
	if len(deps) != 0 {
		t.Fatalf("dangling edge after delete: %v", deps)
	}
}

func TestPlanStoredDropsCompletedDependencies(t *testing.T) {
	env := newTestEnv(t)
	completed := domain.TaskStatusCompleted
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "done", Content: "Shipped", Status: completed, EstimatedDurationMinutes: 60})
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "next", Content: "Follow up", EstimatedDurationMinutes: 60, DependencyIDs: []string{"done"}})

	if _, err := env.Engine.CreateEvent(env.Ctx, engine.EventCreateOptions{
		ID: "evt", Content: "Standup", StartTime: "2024-01-01T09:00:00", EndTime: "2024-01-01T09:30:00", IsFixed: true,
	}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	focusStart, focusEnd, dailyCap := 9, 18, 240
	resp, err := env.Engine.PlanStored(env.Ctx, engine.PlanStoredOptions{
		WindowStart:             "2024-01-01T00:00:00",
		WindowEnd:               "2024-01-02T00:00:00",
		FocusHoursStart:         &focusStart,
		FocusHoursEnd:           &focusEnd,
		MaxPlannedMinutesPerDay: &dailyCap,
	})
	if err != nil {
		t.Fatalf("plan stored: %v", err)
	}
	if len(resp.UnmetTaskWarnings) != 0 {
		t.Fatalf("completed dependency should not block planning: %+v", resp.UnmetTaskWarnings)
	}
	var sawFixed, sawNext, sawDone bool
	for _, b := range resp.Blocks {
		switch {
		case b.BlockType == planner.BlockTypeFixedEvent && b.RefID == "evt":
			sawFixed = true
		case b.BlockType == planner.BlockTypeTask && b.RefID == "next":
			sawNext = true
		case b.RefID == "done":
			sawDone = true
		}
	}
	if !sawFixed || !sawNext {
		t.Fatalf("missing expected blocks: %+v", resp.Blocks)
	}
	if sawDone {
		t.Fatalf("completed task must not be planned: %+v", resp.Blocks)
	}
}

func TestPlanStoredUsesConfiguredDefaults(t *testing.T) {
	env := newTestEnv(t)
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "t", Content: "Work", EstimatedDurationMinutes: 60})

	resp, err := env.Engine.PlanStored(env.Ctx, engine.PlanStoredOptions{
		WindowStart: "2024-01-01T00:00:00",
		WindowEnd:   "2024-01-02T00:00:00",
	})
	if err != nil {
		t.Fatalf("plan stored: %v", err)
	}
	if len(resp.Blocks) != 1 {
		t.Fatalf("expected one block from config defaults, got %+v", resp.Blocks)
	}
	if got := resp.Blocks[0].Start.Hour(); got != env.Engine.Config.Planner.FocusHoursStart {
		t.Fatalf("block start hour %d, want %d", got, env.Engine.Config.Planner.FocusHoursStart)
	}
}

func TestPlanStoredHonorsExplicitZeroFocusWindow(t *testing.T) {
	env := newTestEnv(t)
	mustCreateTask(t, env, engine.TaskCreateOptions{ID: "t", Content: "Work", EstimatedDurationMinutes: 60})

	zero := 0
	dailyCap := 240
	resp, err := env.Engine.PlanStored(env.Ctx, engine.PlanStoredOptions{
		WindowStart:             "2024-01-01T00:00:00",
		WindowEnd:               "2024-01-02T00:00:00",
		FocusHoursStart:         &zero,
		FocusHoursEnd:           &zero,
		MaxPlannedMinutesPerDay: &dailyCap,
	})
	if err != nil {
		t.Fatalf("plan stored: %v", err)
	}
	// A 0..0 focus window has no slots; it must not be rewritten to the
	// configured defaults.
	if len(resp.Blocks) != 0 {
		t.Fatalf("expected no blocks for empty focus window, got %+v", resp.Blocks)
	}
	if len(resp.UnmetTaskWarnings) != 1 || resp.UnmetTaskWarnings[0].TaskID != "t" {
		t.Fatalf("expected t unplanned, got %+v", resp.UnmetTaskWarnings)
	}
}

func TestPlanReturnsBlocksAndMapsErrors(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.Engine.Plan(env.Ctx, planner.Request{
		WindowStart:             time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:               time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		FocusHoursStart:         9,
		FocusHoursEnd:           18,
		MaxPlannedMinutesPerDay: 240,
		Tasks:                   []planner.TaskInput{{ID: "t", EstimatedDurationMinutes: 90}},
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(resp.Blocks) != 1 || resp.Blocks[0].RefID != "t" {
		t.Fatalf("unexpected blocks: %+v", resp.Blocks)
	}

	_, err = env.Engine.Plan(env.Ctx, planner.Request{
		WindowStart: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
