package lifelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Lifeline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Int returns a pointer to v, for the optional PlanRequest fields.
func Int(v int) *int { return &v }

// Event represents an API calendar event.
type Event struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	IsFixed   bool     `json:"is_fixed"`
	ProjectID *string  `json:"project_id,omitempty"`
}

// Task represents an API task.
type Task struct {
	ID                       string   `json:"id"`
	Content                  string   `json:"content"`
	Tags                     []string `json:"tags"`
	Status                   string   `json:"status"`
	Deadline                 *string  `json:"deadline,omitempty"`
	EstimatedDurationMinutes int      `json:"estimated_duration_minutes"`
	ProjectID                *string  `json:"project_id,omitempty"`
	DependencyIDs            []string `json:"dependency_ids"`
	CompletedAt              *string  `json:"completed_at,omitempty"`
}

// PlanRequest matches the POST /plan body.
// PlanRequest mirrors the /plan body. Nil focus-hour and cap fields are
// omitted on the wire and the server fills them from its configured defaults.
type PlanRequest struct {
	WindowStart             string              `json:"window_start"`
	WindowEnd               string              `json:"window_end"`
	FocusHoursStart         *int                `json:"focus_hours_start,omitempty"`
	FocusHoursEnd           *int                `json:"focus_hours_end,omitempty"`
	MaxPlannedMinutesPerDay *int                `json:"max_planned_minutes_per_day,omitempty"`
	Tasks                   []PlanTask          `json:"tasks"`
	FixedEvents             []PlanEvent         `json:"fixed_events,omitempty"`
	DependencyGraph         map[string][]string `json:"dependency_graph,omitempty"`
}

type PlanTask struct {
	ID                       string   `json:"id"`
	Content                  string   `json:"content,omitempty"`
	EstimatedDurationMinutes int      `json:"estimated_duration_minutes"`
	Deadline                 *string  `json:"deadline,omitempty"`
	DependencyIDs            []string `json:"dependency_ids,omitempty"`
}

type PlanEvent struct {
	ID        string `json:"id"`
	Content   string `json:"content,omitempty"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type PlanBlock struct {
	BlockType string `json:"block_type"`
	RefID     string `json:"ref_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Rationale string `json:"rationale"`
}

type UnmetTaskWarning struct {
	TaskID           string `json:"task_id"`
	MinutesUnplanned int    `json:"minutes_unplanned"`
	Reason           string `json:"reason"`
}

type PlanResponse struct {
	Blocks            []PlanBlock        `json:"blocks"`
	UnmetTaskWarnings []UnmetTaskWarning `json:"unmet_task_warnings"`
}

type Diagnostic struct {
	Code     string  `json:"code"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Start    *string `json:"start,omitempty"`
	End      *string `json:"end,omitempty"`
	EventID  *string `json:"event_id,omitempty"`
	Hint     *string `json:"hint,omitempty"`
}

type LintSummary struct {
	SeverityCounts    map[string]int `json:"severity_counts"`
	TopBlockingIssues []string       `json:"top_blocking_issues"`
}

type LintResponse struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
	Summary     LintSummary  `json:"summary"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateEvent creates a calendar event.
func (c *Client) CreateEvent(ctx context.Context, ev Event) (Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodPost, "events", ev, &resp)
	return resp, err
}

// ListEvents returns events whose start time falls in [from, to].
func (c *Client) ListEvents(ctx context.Context, from, to string, limit int) ([]Event, error) {
	q := url.Values{}
	if from != "" {
		q.Set("start_from", from)
	}
	if to != "" {
		q.Set("start_to", to)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DeleteEvent deletes an event by id.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "events/"+url.PathEscape(id), nil, nil)
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, t Task) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTasks returns tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status string, limit int) ([]Task, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ReplaceDependencies swaps the full predecessor set for a task.
func (c *Client) ReplaceDependencies(ctx context.Context, taskID string, dependencyIDs []string) ([]string, error) {
	var resp []string
	endpoint := "tasks/" + url.PathEscape(taskID) + "/dependencies"
	err := c.do(ctx, http.MethodPut, endpoint, dependencyIDs, &resp)
	return resp, err
}

// Plan builds a plan from the given request without touching stored state.
func (c *Client) Plan(ctx context.Context, req PlanRequest) (PlanResponse, error) {
	var resp PlanResponse
	err := c.do(ctx, http.MethodPost, "plan", req, &resp)
	return resp, err
}

// Lint runs the schedule rules over the given events.
func (c *Client) Lint(ctx context.Context, events []Event) (LintResponse, error) {
	var resp LintResponse
	err := c.do(ctx, http.MethodPost, "lint", map[string]any{"events": events}, &resp)
	return resp, err
}

// LintStored lints every persisted event.
func (c *Client) LintStored(ctx context.Context) (LintResponse, error) {
	var resp LintResponse
	err := c.do(ctx, http.MethodGet, "lint", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
