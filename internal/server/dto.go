package server

import (
	"time"

	"lifeline/internal/config"
	"lifeline/internal/engine"
	"lifeline/internal/lint"
	"lifeline/internal/planner"
)

type CreateProjectRequest struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type EventRequest struct {
	ID        string   `json:"id,omitempty"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags,omitempty"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	IsFixed   bool     `json:"is_fixed,omitempty"`
	ProjectID *string  `json:"project_id,omitempty"`
}

type TaskRequest struct {
	ID                       string   `json:"id,omitempty"`
	Content                  string   `json:"content"`
	Tags                     []string `json:"tags,omitempty"`
	Status                   string   `json:"status,omitempty"`
	Deadline                 *string  `json:"deadline,omitempty"`
	EstimatedDurationMinutes int      `json:"estimated_duration_minutes"`
	ProjectID                *string  `json:"project_id,omitempty"`
	DependencyIDs            []string `json:"dependency_ids,omitempty"`
}

type PlanTaskInput struct {
	ID                       string   `json:"id"`
	Content                  string   `json:"content,omitempty"`
	EstimatedDurationMinutes int      `json:"estimated_duration_minutes"`
	Deadline                 *string  `json:"deadline,omitempty"`
	DependencyIDs            []string `json:"dependency_ids,omitempty"`
}

type PlanEventInput struct {
	ID        string `json:"id"`
	Content   string `json:"content,omitempty"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// PlanRequest keeps focus hours and the daily cap as pointers so an omitted
// field gets the configured default while an explicit zero stays zero.
type PlanRequest struct {
	WindowStart             string              `json:"window_start"`
	WindowEnd               string              `json:"window_end"`
	FocusHoursStart         *int                `json:"focus_hours_start,omitempty"`
	FocusHoursEnd           *int                `json:"focus_hours_end,omitempty"`
	MaxPlannedMinutesPerDay *int                `json:"max_planned_minutes_per_day,omitempty"`
	Tasks                   []PlanTaskInput     `json:"tasks"`
	FixedEvents             []PlanEventInput    `json:"fixed_events,omitempty"`
	DependencyGraph         map[string][]string `json:"dependency_graph,omitempty"`
}

type PlanBlockResponse struct {
	BlockType string `json:"block_type"`
	RefID     string `json:"ref_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Rationale string `json:"rationale"`
}

type UnmetTaskWarningResponse struct {
	TaskID           string `json:"task_id"`
	MinutesUnplanned int    `json:"minutes_unplanned"`
	Reason           string `json:"reason"`
}

type PlanResponse struct {
	Blocks            []PlanBlockResponse        `json:"blocks"`
	UnmetTaskWarnings []UnmetTaskWarningResponse `json:"unmet_task_warnings"`
}

// toPlannerRequest parses the wire timestamps into the pure planner types and
// fills omitted focus/cap fields from the given defaults.
func (r PlanRequest) toPlannerRequest(defaults config.PlannerDefaults) (planner.Request, error) {
	windowStart, err := engine.ParseTime("window_start", r.WindowStart)
	if err != nil {
		return planner.Request{}, err
	}
	windowEnd, err := engine.ParseTime("window_end", r.WindowEnd)
	if err != nil {
		return planner.Request{}, err
	}
	req := planner.Request{
		WindowStart:             windowStart,
		WindowEnd:               windowEnd,
		FocusHoursStart:         defaults.FocusHoursStart,
		FocusHoursEnd:           defaults.FocusHoursEnd,
		MaxPlannedMinutesPerDay: defaults.MaxPlannedMinutesPerDay,
		DependencyGraph:         r.DependencyGraph,
	}
	if r.FocusHoursStart != nil {
		req.FocusHoursStart = *r.FocusHoursStart
	}
	if r.FocusHoursEnd != nil {
		req.FocusHoursEnd = *r.FocusHoursEnd
	}
	if r.MaxPlannedMinutesPerDay != nil {
		req.MaxPlannedMinutesPerDay = *r.MaxPlannedMinutesPerDay
	}
	for _, t := range r.Tasks {
		task := planner.TaskInput{
			ID:                       t.ID,
			EstimatedDurationMinutes: t.EstimatedDurationMinutes,
			DependencyIDs:            t.DependencyIDs,
		}
		if t.Deadline != nil {
			deadline, err := engine.ParseTime("deadline", *t.Deadline)
			if err != nil {
				return planner.Request{}, err
			}
			task.Deadline = &deadline
		}
		req.Tasks = append(req.Tasks, task)
	}
	for _, ev := range r.FixedEvents {
		start, err := engine.ParseTime("start_time", ev.StartTime)
		if err != nil {
			return planner.Request{}, err
		}
		end, err := engine.ParseTime("end_time", ev.EndTime)
		if err != nil {
			return planner.Request{}, err
		}
		req.FixedEvents = append(req.FixedEvents, planner.EventInput{ID: ev.ID, StartTime: start, EndTime: end})
	}
	return req, nil
}

func planResponse(resp planner.Response) PlanResponse {
	out := PlanResponse{
		Blocks:            []PlanBlockResponse{},
		UnmetTaskWarnings: []UnmetTaskWarningResponse{},
	}
	for _, b := range resp.Blocks {
		out.Blocks = append(out.Blocks, PlanBlockResponse{
			BlockType: b.BlockType,
			RefID:     b.RefID,
			StartTime: b.Start.Format(time.RFC3339),
			EndTime:   b.End.Format(time.RFC3339),
			Rationale: b.Rationale,
		})
	}
	for _, w := range resp.UnmetTaskWarnings {
		out.UnmetTaskWarnings = append(out.UnmetTaskWarnings, UnmetTaskWarningResponse{
			TaskID:           w.TaskID,
			MinutesUnplanned: w.MinutesUnplanned,
			Reason:           w.Reason,
		})
	}
	return out
}

type LintEventInput struct {
	ID                       string   `json:"id"`
	StartTime                string   `json:"start_time"`
	EndTime                  string   `json:"end_time"`
	ProjectID                *string  `json:"project_id,omitempty"`
	Tags                     []string `json:"tags,omitempty"`
	DependencyIDs            []string `json:"dependency_ids,omitempty"`
	Deadline                 *string  `json:"deadline,omitempty"`
	EstimatedDurationMinutes *int     `json:"estimated_duration_minutes,omitempty"`
}

type LintRequest struct {
	Events []LintEventInput `json:"events"`
}

func (r LintRequest) toLintEvents() ([]lint.Event, error) {
	var events []lint.Event
	for _, in := range r.Events {
		start, err := engine.ParseTime("start_time", in.StartTime)
		if err != nil {
			return nil, err
		}
		end, err := engine.ParseTime("end_time", in.EndTime)
		if err != nil {
			return nil, err
		}
		ev := lint.Event{
			ID:                       in.ID,
			StartTime:                start,
			EndTime:                  end,
			Tags:                     in.Tags,
			DependencyIDs:            in.DependencyIDs,
			EstimatedDurationMinutes: in.EstimatedDurationMinutes,
		}
		if in.ProjectID != nil {
			ev.ProjectID = *in.ProjectID
		}
		if in.Deadline != nil {
			deadline, err := engine.ParseTime("deadline", *in.Deadline)
			if err != nil {
				return nil, err
			}
			ev.Deadline = &deadline
		}
		events = append(events, ev)
	}
	return events, nil
}

type DiagnosticResponse struct {
	Code     string  `json:"code"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Start    string  `json:"start"`
	End      *string `json:"end,omitempty"`
	EventID  *string `json:"event_id,omitempty"`
	Hint     *string `json:"hint,omitempty"`
}

type LintSummaryResponse struct {
	SeverityCounts    map[string]int       `json:"severity_counts"`
	TopBlockingIssues []DiagnosticResponse `json:"top_blocking_issues"`
}

type LintResponse struct {
	Diagnostics []DiagnosticResponse `json:"diagnostics"`
	Summary     LintSummaryResponse  `json:"summary"`
}

func diagnosticResponse(d lint.Diagnostic) DiagnosticResponse {
	out := DiagnosticResponse{
		Code:     d.Code,
		Severity: string(d.Severity),
		Message:  d.Message,
		Start:    d.Start.Format(time.RFC3339),
	}
	if d.End != nil {
		end := d.End.Format(time.RFC3339)
		out.End = &end
	}
	if d.EventID != "" {
		id := d.EventID
		out.EventID = &id
	}
	if d.Hint != "" {
		hint := d.Hint
		out.Hint = &hint
	}
	return out
}

func lintResponse(diags []lint.Diagnostic, summary lint.Summary) LintResponse {
	out := LintResponse{
		Diagnostics: []DiagnosticResponse{},
		Summary: LintSummaryResponse{
			SeverityCounts:    map[string]int{},
			TopBlockingIssues: []DiagnosticResponse{},
		},
	}
	for _, d := range diags {
		out.Diagnostics = append(out.Diagnostics, diagnosticResponse(d))
	}
	for sev, n := range summary.SeverityCounts {
		out.Summary.SeverityCounts[string(sev)] = n
	}
	for _, d := range summary.TopBlockingIssues {
		out.Summary.TopBlockingIssues = append(out.Summary.TopBlockingIssues, diagnosticResponse(d))
	}
	return out
}
