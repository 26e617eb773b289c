package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"lifeline/internal/domain"
	"lifeline/internal/engine"
	"lifeline/internal/metrics"
	"lifeline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine          engine.Engine
	BasePath        string
	Auth            AuthConfig
	Logger          zerolog.Logger
	RateLimitPerSec float64
	RateLimitBurst  int
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_error"`
	Message string         `json:"message" example:"Unknown dependency task ids"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Lifeline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the error envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		var details map[string]any
		if len(errs) > 0 {
			issues := make([]string, 0, len(errs))
			for _, e := range errs {
				issues = append(issues, e.Error())
			}
			details = map[string]any{"issues": issues}
		}
		if status == http.StatusUnprocessableEntity {
			return newAPIError(status, "validation_error", "Validation failed", details)
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestContextMiddleware(cfg.Logger, cfg.Engine.Metrics))
	if cfg.RateLimitPerSec > 0 {
		router.Use(rateLimitMiddleware(cfg.RateLimitPerSec, cfg.RateLimitBurst))
	}
	if cfg.Auth.Enabled {
		router.Use(newAuthMiddleware(basePath, cfg.Auth))
	}

	hcfg := huma.DefaultConfig("Lifeline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	var group huma.API = api
	if basePath != "" {
		group = huma.NewGroup(api, basePath)
	}

	registerHealth(router, group, basePath, cfg.Engine)
	registerStatus(group, cfg.Engine.Metrics)
	registerProjects(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerPlan(group, cfg.Engine)
	registerLint(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func notFoundError(resource, id, message string) huma.StatusError {
	return newAPIError(http.StatusNotFound, "not_found", message, map[string]any{"resource": resource, "id": id})
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_error", ve.Message, ve.Details)
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", ce.Message, ce.Details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_error"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(router chi.Router, api huma.API, basePath string, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health-live",
		Method:      http.MethodGet,
		Path:        "/health/live",
		Summary:     "Liveness check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})

	// Readiness bypasses Huma so a failing database yields a plain 503 body
	// rather than the error envelope.
	router.Get(basePath+"/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := e.DB.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not_ready"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})
}

func registerStatus(api huma.API, store *metrics.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Runtime metrics snapshot",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body metrics.Snapshot `json:"body"`
	}, error) {
		return &struct {
			Body metrics.Snapshot `json:"body"`
		}{Body: store.Snapshot()}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create a project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		p, err := e.CreateProject(ctx, input.Body.ID, input.Body.Name, desc)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get a project by id",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFoundError("project", input.ProjectID, "Project not found")
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete a project by id",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		err := e.DeleteProject(ctx, input.ProjectID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFoundError("project", input.ProjectID, "Project not found")
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks for a project",
	}, func(ctx context.Context, input *struct {
		ProjectID    string   `path:"project_id"`
		Status       string   `query:"status"`
		DeadlineFrom string   `query:"deadline_from"`
		DeadlineTo   string   `query:"deadline_to"`
		Tags         []string `query:"tags"`
		Limit        int      `query:"limit" default:"50" minimum:"1" maximum:"200"`
		Offset       int      `query:"offset" minimum:"0"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			Status:       input.Status,
			ProjectID:    input.ProjectID,
			DeadlineFrom: input.DeadlineFrom,
			DeadlineTo:   input.DeadlineTo,
			Tags:         input.Tags,
			Limit:        input.Limit,
			Offset:       input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-event",
		Method:        http.MethodPost,
		Path:          "/events",
		Summary:       "Create an event",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body EventRequest `json:"body"`
	}) (*struct {
		Body domain.Event `json:"body"`
	}, error) {
		ev, err := e.CreateEvent(ctx, engine.EventCreateOptions{
			ID:        input.Body.ID,
			Content:   input.Body.Content,
			Tags:      input.Body.Tags,
			StartTime: input.Body.StartTime,
			EndTime:   input.Body.EndTime,
			IsFixed:   input.Body.IsFixed,
			ProjectID: input.Body.ProjectID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Event `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events with filtering and pagination",
	}, func(ctx context.Context, input *struct {
		StartFrom string   `query:"start_from"`
		StartTo   string   `query:"start_to"`
		EndFrom   string   `query:"end_from"`
		EndTo     string   `query:"end_to"`
		ProjectID string   `query:"project_id"`
		Tags      []string `query:"tags"`
		IsFixed   string   `query:"is_fixed"`
		Limit     int      `query:"limit" default:"50" minimum:"1" maximum:"200"`
		Offset    int      `query:"offset" minimum:"0"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		filters := repo.EventFilters{
			StartFrom: input.StartFrom,
			StartTo:   input.StartTo,
			EndFrom:   input.EndFrom,
			EndTo:     input.EndTo,
			ProjectID: input.ProjectID,
			Tags:      input.Tags,
			Limit:     input.Limit,
			Offset:    input.Offset,
		}
		switch input.IsFixed {
		case "true":
			fixed := true
			filters.IsFixed = &fixed
		case "false":
			fixed := false
			filters.IsFixed = &fixed
		}
		events, err := e.Repo.ListEvents(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: events}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}",
		Summary:     "Get an event by id",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct {
		Body domain.Event `json:"body"`
	}, error) {
		ev, err := e.Repo.GetEvent(ctx, input.EventID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFoundError("event", input.EventID, "Event not found")
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Event `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-event",
		Method:      http.MethodPut,
		Path:        "/events/{event_id}",
		Summary:     "Update an event by id",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		EventID string       `path:"event_id"`
		Body    EventRequest `json:"body"`
	}) (*struct {
		Body domain.Event `json:"body"`
	}, error) {
		ev, err := e.UpdateEvent(ctx, input.EventID, engine.EventCreateOptions{
			Content:   input.Body.Content,
			Tags:      input.Body.Tags,
			StartTime: input.Body.StartTime,
			EndTime:   input.Body.EndTime,
			IsFixed:   input.Body.IsFixed,
			ProjectID: input.Body.ProjectID,
		})
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFoundError("event", input.EventID, "Event not found")
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Event `json:"body"`
		}{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-event",
		Method:        http.MethodDelete,
		Path:          "/events/{event_id}",
		Summary:       "Delete an event by id",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct{}, error) {
		err := e.DeleteEvent(ctx, input.EventID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFoundError("event", input.EventID, "Event not found")
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body TaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			ID:                       input.Body.ID,
			Content:                  input.Body.Content,
			Tags:                     input.Body.Tags,
			Status:                   input.Body.Status,
			Deadline:                 input.Body.Deadline,
			EstimatedDurationMinutes: input.Body.EstimatedDurationMinutes,
			ProjectID:                input.Body.ProjectID,
			DependencyIDs:            input.Body.DependencyIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks with filtering and pagination",
	}, func(ctx context.Context, input *struct {
		Status       string   `query:"status"`
		DeadlineFrom string   `query:"deadline_from"`
		DeadlineTo   string   `query:"deadline_to"`
		ProjectID    string   `query:"project_id"`
		Tags         []string `query:"tags"`
		Limit        int      `query:"limit" default:"50" minimum:"1" maximum:"200"`
		Offset       int      `query:"offset" minimum:"0"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			Status:       input.Status,
			ProjectID:    input.ProjectID,
			DeadlineFrom: input.DeadlineFrom,
			DeadlineTo:   input.DeadlineTo,
			Tags:         input.Tags,
			Limit:        input.Limit,
			Offset:       input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get a task by id",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFoundError("task", input.TaskID, "Task not found")
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}",
		Summary:     "Update a task by id",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		TaskID string      `path:"task_id"`
		Body   TaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		// PUT is a full replacement: omitted optional fields clear.
		status := input.Body.Status
		if status == "" {
			status = domain.TaskStatusTodo
		}
		deps := input.Body.DependencyIDs
		if deps == nil {
			deps = []string{}
		}
		t, err := e.UpdateTask(ctx, input.TaskID, engine.TaskUpdateOptions{
			Content:                  &input.Body.Content,
			Tags:                     input.Body.Tags,
			TagsProvided:             true,
			Status:                   &status,
			Deadline:                 input.Body.Deadline,
			DeadlineProvided:         true,
			EstimatedDurationMinutes: &input.Body.EstimatedDurationMinutes,
			ProjectID:                input.Body.ProjectID,
			ProjectIDProvided:        true,
			DependencyIDs:            &deps,
		})
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFoundError("task", input.TaskID, "Task not found")
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete a task by id",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		err := e.DeleteTask(ctx, input.TaskID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFoundError("task", input.TaskID, "Task not found")
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-dependencies",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/dependencies",
		Summary:     "List dependencies for a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		if _, err := e.Repo.GetTask(ctx, input.TaskID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, notFoundError("task", input.TaskID, "Task not found")
			}
			return nil, handleError(err)
		}
		deps, err := e.Repo.ListTaskDependencies(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: deps}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-task-dependencies",
		Method:      http.MethodPut,
		Path:        "/tasks/{task_id}/dependencies",
		Summary:     "Replace dependencies for a task",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		TaskID string   `path:"task_id"`
		Body   []string `json:"body"`
	}) (*struct {
		Body []string `json:"body"`
	}, error) {
		deps, err := e.ReplaceTaskDependencies(ctx, input.TaskID, input.Body)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, notFoundError("task", input.TaskID, "Task not found")
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []string `json:"body"`
		}{Body: deps}, nil
	})
}

func registerPlan(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "plan",
		Method:      http.MethodPost,
		Path:        "/plan",
		Summary:     "Build a capacity-constrained plan",
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body PlanRequest `json:"body"`
	}) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		req, err := input.Body.toPlannerRequest(e.PlannerDefaults())
		if err != nil {
			return nil, handleError(err)
		}
		resp, err := e.Plan(ctx, req)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: planResponse(resp)}, nil
	})
}

func registerLint(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "lint",
		Method:      http.MethodPost,
		Path:        "/lint",
		Summary:     "Lint events from request body",
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body LintRequest `json:"body"`
	}) (*struct {
		Body LintResponse `json:"body"`
	}, error) {
		events, err := input.Body.toLintEvents()
		if err != nil {
			return nil, handleError(err)
		}
		diags, summary := e.Lint(ctx, events)
		return &struct {
			Body LintResponse `json:"body"`
		}{Body: lintResponse(diags, summary)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "lint-from-db",
		Method:      http.MethodGet,
		Path:        "/lint",
		Summary:     "Lint persisted events",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body LintResponse `json:"body"`
	}, error) {
		diags, summary, err := e.LintStored(ctx, "", "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LintResponse `json:"body"`
		}{Body: lintResponse(diags, summary)}, nil
	})
}

