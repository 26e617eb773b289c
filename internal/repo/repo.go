package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"lifeline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

func decodeTags(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return []string{}
	}
	if tags == nil {
		tags = []string{}
	}
	return tags
}

// tagMatchClause matches rows whose tags_json array contains any of the given
// tags. It runs before LIMIT/OFFSET so pagination counts filtered rows.
func tagMatchClause(tags []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tags)), ",")
	return "EXISTS (SELECT 1 FROM json_each(tags_json) WHERE json_each.value IN (" + placeholders + "))"
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,name,description,created_at,updated_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(description,'') AS description,created_at,updated_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,'') AS description,created_at,updated_at FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, id string, name, description *string, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertEvent(ctx context.Context, e domain.Event) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO events(id,content,tags_json,start_time,end_time,is_fixed,project_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Content, encodeTags(e.Tags), e.StartTime, e.EndTime, e.IsFixed, nullableStringPtr(e.ProjectID), e.CreatedAt, e.UpdatedAt)
	return err
}

func scanEvent(scan func(dest ...any) error) (domain.Event, error) {
	var e domain.Event
	var tags string
	var projectID sql.NullString
	err := scan(&e.ID, &e.Content, &tags, &e.StartTime, &e.EndTime, &e.IsFixed, &projectID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	e.Tags = decodeTags(tags)
	if projectID.Valid {
		e.ProjectID = &projectID.String
	}
	return e, nil
}

const eventColumns = `id,content,tags_json,start_time,end_time,is_fixed,project_id,created_at,updated_at`

func (r Repo) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id=?`, id)
	e, err := scanEvent(row.Scan)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

type EventFilters struct {
	StartFrom string
	StartTo   string
	EndFrom   string
	EndTo     string
	ProjectID string
	IsFixed   *bool
	Tags      []string
	Limit     int
	Offset    int
}

func (r Repo) ListEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	var clauses []string
	var args []any
	if f.StartFrom != "" {
		clauses = append(clauses, "start_time>=?")
		args = append(args, f.StartFrom)
	}
	if f.StartTo != "" {
		clauses = append(clauses, "start_time<=?")
		args = append(args, f.StartTo)
	}
	if f.EndFrom != "" {
		clauses = append(clauses, "end_time>=?")
		args = append(args, f.EndFrom)
	}
	if f.EndTo != "" {
		clauses = append(clauses, "end_time<=?")
		args = append(args, f.EndTo)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.IsFixed != nil {
		clauses = append(clauses, "is_fixed=?")
		args = append(args, *f.IsFixed)
	}
	if len(f.Tags) > 0 {
		clauses = append(clauses, tagMatchClause(f.Tags))
		for _, tag := range f.Tags {
			args = append(args, tag)
		}
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + eventColumns + ` FROM events ` + where + ` ORDER BY start_time ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) UpdateEvent(ctx context.Context, e domain.Event) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE events SET content=?, tags_json=?, start_time=?, end_time=?, is_fixed=?, project_id=?, updated_at=? WHERE id=?`,
		e.Content, encodeTags(e.Tags), e.StartTime, e.EndTime, e.IsFixed, nullableStringPtr(e.ProjectID), e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteEvent(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM events WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const taskColumns = `id,content,tags_json,status,deadline,estimated_duration_minutes,project_id,completed_at,created_at,updated_at`

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Content, encodeTags(t.Tags), t.Status, nullableStringPtr(t.Deadline), t.EstimatedDurationMinutes,
		nullableStringPtr(t.ProjectID), nullableStringPtr(t.CompletedAt), t.CreatedAt, t.UpdatedAt)
	return err
}

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var tags string
	var deadline, projectID, completedAt sql.NullString
	err := scan(&t.ID, &t.Content, &tags, &t.Status, &deadline, &t.EstimatedDurationMinutes, &projectID, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.Tags = decodeTags(tags)
	if deadline.Valid {
		t.Deadline = &deadline.String
	}
	if projectID.Valid {
		t.ProjectID = &projectID.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	deps, err := r.ListTaskDependencies(ctx, t.ID)
	if err != nil {
		return t, err
	}
	t.DependencyIDs = deps
	return t, nil
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	deps, err := r.ListTaskDependenciesTx(ctx, tx, t.ID)
	if err != nil {
		return t, err
	}
	t.DependencyIDs = deps
	return t, nil
}

type TaskFilters struct {
	Status       string
	ProjectID    string
	DeadlineFrom string
	DeadlineTo   string
	Tags         []string
	Limit        int
	Offset       int
}

// ListTasks orders by deadline ascending with tasks lacking a deadline last,
// then by id for a stable tie-break. Dependency ids are attached per task.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.DeadlineFrom != "" {
		clauses = append(clauses, "deadline>=?")
		args = append(args, f.DeadlineFrom)
	}
	if f.DeadlineTo != "" {
		clauses = append(clauses, "deadline<=?")
		args = append(args, f.DeadlineTo)
	}
	if len(f.Tags) > 0 {
		clauses = append(clauses, tagMatchClause(f.Tags))
		for _, tag := range f.Tags {
			args = append(args, tag)
		}
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY CASE WHEN deadline IS NULL THEN 1 ELSE 0 END, deadline ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		deps, err := r.ListTaskDependencies(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].DependencyIDs = deps
	}
	return res, nil
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET content=?, tags_json=?, status=?, deadline=?, estimated_duration_minutes=?, project_id=?, completed_at=?, updated_at=? WHERE id=?`,
		t.Content, encodeTags(t.Tags), t.Status, nullableStringPtr(t.Deadline), t.EstimatedDurationMinutes,
		nullableStringPtr(t.ProjectID), nullableStringPtr(t.CompletedAt), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE predecessor_task_id=? OR successor_task_id=?`, id, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTaskDependencies returns the predecessor ids of a task, sorted.
func (r Repo) ListTaskDependencies(ctx context.Context, taskID string) ([]string, error) {
	return listPredecessors(ctx, r.DB.QueryContext, taskID)
}

func (r Repo) ListTaskDependenciesTx(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	return listPredecessors(ctx, tx.QueryContext, taskID)
}

type queryFn func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func listPredecessors(ctx context.Context, query queryFn, taskID string) ([]string, error) {
	rows, err := query(ctx, `SELECT predecessor_task_id FROM task_dependencies WHERE successor_task_id=? ORDER BY predecessor_task_id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	deps := []string{}
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

// ReplaceTaskDependenciesTx swaps the full set of predecessors for a task.
func (r Repo) ReplaceTaskDependenciesTx(ctx context.Context, tx *sql.Tx, taskID string, predecessors []string, createdAt string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE successor_task_id=?`, taskID); err != nil {
		return err
	}
	for _, p := range predecessors {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_dependencies(predecessor_task_id,successor_task_id,created_at) VALUES (?,?,?)`, p, taskID, createdAt); err != nil {
			return err
		}
	}
	return nil
}

// AllDependencyEdgesTx snapshots every stored edge within the transaction.
func (r Repo) AllDependencyEdgesTx(ctx context.Context, tx *sql.Tx) ([]domain.TaskDependency, error) {
	rows, err := tx.QueryContext(ctx, `SELECT predecessor_task_id,successor_task_id,created_at FROM task_dependencies ORDER BY predecessor_task_id ASC, successor_task_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskDependency
	for rows.Next() {
		var d domain.TaskDependency
		if err := rows.Scan(&d.PredecessorTaskID, &d.SuccessorTaskID, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) AllDependencyEdges(ctx context.Context) ([]domain.TaskDependency, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT predecessor_task_id,successor_task_id,created_at FROM task_dependencies ORDER BY predecessor_task_id ASC, successor_task_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskDependency
	for rows.Next() {
		var d domain.TaskDependency
		if err := rows.Scan(&d.PredecessorTaskID, &d.SuccessorTaskID, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// MissingTaskIDsTx reports which of the given ids have no task row, sorted.
func (r Repo) MissingTaskIDsTx(ctx context.Context, tx *sql.Tx, ids []string) ([]string, error) {
	var missing []string
	for _, id := range ids {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id=?`, id).Scan(&one)
		if err == sql.ErrNoRows {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return missing, nil
}

func (r Repo) InsertRoutine(ctx context.Context, rt domain.Routine) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO routines(id,name,task_template,project_id,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		rt.ID, rt.Name, rt.TaskTemplate, nullableStringPtr(rt.ProjectID), rt.CreatedAt, rt.UpdatedAt)
	return err
}

func (r Repo) GetRoutine(ctx context.Context, id string) (domain.Routine, error) {
	var rt domain.Routine
	var projectID sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,task_template,project_id,created_at,updated_at FROM routines WHERE id=?`, id).
		Scan(&rt.ID, &rt.Name, &rt.TaskTemplate, &projectID, &rt.CreatedAt, &rt.UpdatedAt)
	if err == sql.ErrNoRows {
		return rt, ErrNotFound
	}
	if projectID.Valid {
		rt.ProjectID = &projectID.String
	}
	return rt, err
}

func (r Repo) ListRoutines(ctx context.Context, projectID string) ([]domain.Routine, error) {
	var clauses []string
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,task_template,project_id,created_at,updated_at FROM routines `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Routine
	for rows.Next() {
		var rt domain.Routine
		var pid sql.NullString
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.TaskTemplate, &pid, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
			return nil, err
		}
		if pid.Valid {
			rt.ProjectID = &pid.String
		}
		res = append(res, rt)
	}
	return res, rows.Err()
}

func (r Repo) UpdateRoutine(ctx context.Context, rt domain.Routine) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE routines SET name=?, task_template=?, project_id=?, updated_at=? WHERE id=?`,
		rt.Name, rt.TaskTemplate, nullableStringPtr(rt.ProjectID), rt.UpdatedAt, rt.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteRoutine(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM routines WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertRecurringRule(ctx context.Context, rule domain.RecurringRule) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO recurring_rules(id,routine_id,cadence,interval,start_at,end_at) VALUES (?,?,?,?,?,?)`,
		rule.ID, rule.RoutineID, rule.Cadence, rule.Interval, rule.StartAt, nullableStringPtr(rule.EndAt))
	return err
}

func (r Repo) ListRecurringRules(ctx context.Context, routineID string) ([]domain.RecurringRule, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,routine_id,cadence,interval,start_at,end_at FROM recurring_rules WHERE routine_id=? ORDER BY start_at ASC, id ASC`, routineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RecurringRule
	for rows.Next() {
		var rule domain.RecurringRule
		var endAt sql.NullString
		if err := rows.Scan(&rule.ID, &rule.RoutineID, &rule.Cadence, &rule.Interval, &rule.StartAt, &endAt); err != nil {
			return nil, err
		}
		if endAt.Valid {
			rule.EndAt = &endAt.String
		}
		res = append(res, rule)
	}
	return res, rows.Err()
}

func (r Repo) DeleteRecurringRule(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM recurring_rules WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func (r Repo) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM events`).Scan(&n)
	return n, err
}

// LatestAuditEntries returns the newest entries first, optionally filtered by
// entity kind and id.
func (r Repo) LatestAuditEntries(ctx context.Context, limit int, entityKind, entityID string) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var clauses []string
	args := []any{}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,action,entity_kind,entity_id,payload_json FROM audit_log `+where+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var entity sql.NullString
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Action, &e.EntityKind, &entity, &payload); err != nil {
			return nil, err
		}
		if entity.Valid {
			e.EntityID = entity.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
