package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lifeline/internal/app"
	"lifeline/internal/config"
	"lifeline/internal/db"
	"lifeline/internal/domain"
	"lifeline/internal/engine"
	"lifeline/internal/migrate"
	"lifeline/internal/planner"
	"lifeline/internal/repo"
	"lifeline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "lifeline",
	Short: "Lifeline CLI",
	Long: `Lifeline manages tasks, calendar events and dependencies, plans work into
focus hours with a daily capacity cap, and lints schedules for conflicts.
The workspace is a directory holding lifeline.yml and a .lifeline database.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LIFELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(routineCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(lintCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !viper.GetBool("force") {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Printf("Initialized workspace: %s, database %s\n", path, db.Path(workspace))
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project-id", "lifeline", "default project id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect workspace configuration"}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	}
	cfg.AddCommand(show)

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				path = config.Path(viper.GetString("workspace"))
			}
			if _, err := config.FromFile(path); err != nil {
				return err
			}
			fmt.Printf("%s is valid\n", path)
			return nil
		},
	}
	validate.Flags().StringVar(&file, "file", "", "config file path (defaults to workspace lifeline.yml)")
	cfg.AddCommand(validate)
	return cfg
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			version, err := migrate.Version(conn)
			if err != nil {
				return err
			}
			fmt.Printf("Schema at version %d\n", version)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				version, err := migrate.Version(e.DB)
				if err != nil {
					return err
				}
				taskCounts, err := e.Repo.CountTasksByStatus(ctx)
				if err != nil {
					return err
				}
				eventCount, err := e.Repo.CountEvents(ctx)
				if err != nil {
					return err
				}
				out := map[string]any{
					"project_id":     e.Config.Project.ID,
					"schema_version": version,
					"task_counts":    taskCounts,
					"event_count":    eventCount,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Project: %s\n", e.Config.Project.ID)
				fmt.Printf("Schema version: %d\n", version)
				fmt.Printf("Events: %d\n", eventCount)
				fmt.Println("Tasks:")
				for _, status := range []string{domain.TaskStatusTodo, domain.TaskStatusInProgress, domain.TaskStatusCompleted} {
					fmt.Printf("  %s: %d\n", status, taskCounts[status])
				}
				return nil
			})
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var id, name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, id, name, desc)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated when omitted)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var namePtr, descPtr *string
			if cmd.Flags().Changed("name") {
				namePtr = &name
			}
			if cmd.Flags().Changed("description") {
				descPtr = &desc
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProject(ctx, args[0], namePtr, descPtr)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteProject(ctx, args[0])
			})
		},
	}
}

func eventCmd() *cobra.Command {
	evt := &cobra.Command{Use: "event", Short: "Manage calendar events"}
	evt.AddCommand(eventCreateCmd())
	evt.AddCommand(eventListCmd())
	evt.AddCommand(eventShowCmd())
	evt.AddCommand(eventUpdateCmd())
	evt.AddCommand(eventDeleteCmd())
	return evt
}

func eventCreateCmd() *cobra.Command {
	var id, content, start, end, projectID string
	var tags []string
	var fixed bool
	cmd := &cobra.Command{
		Use:     "create",
		Aliases: []string{"add"},
		Short:   "Create an event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.CreateEvent(ctx, engine.EventCreateOptions{
					ID:        id,
					Content:   content,
					Tags:      tags,
					StartTime: start,
					EndTime:   end,
					IsFixed:   fixed,
					ProjectID: optionalString(projectID),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "event id (generated when omitted)")
	cmd.Flags().StringVar(&content, "content", "", "event description")
	cmd.Flags().StringVar(&start, "start", "", "start time (ISO 8601)")
	cmd.Flags().StringVar(&end, "end", "", "end time (ISO 8601)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags")
	cmd.Flags().BoolVar(&fixed, "fixed", false, "fixed events block planner capacity")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("content")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func eventListCmd() *cobra.Command {
	var from, to, projectID, tag string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				filters := repoEventFilters(from, to, projectID, limit, offset)
				if tag != "" {
					filters.Tags = []string{tag}
				}
				events, err := e.Repo.ListEvents(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Content", "Start", "End", "Fixed", "Tags"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.Content, ev.StartTime, ev.EndTime, ev.IsFixed, strings.Join(ev.Tags, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start time lower bound")
	cmd.Flags().StringVar(&to, "to", "", "start time upper bound")
	cmd.Flags().StringVar(&projectID, "project", "", "project id filter")
	cmd.Flags().StringVar(&tag, "tag", "", "tag filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "results to skip")
	return cmd
}

func eventShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.Repo.GetEvent(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
}

func eventUpdateCmd() *cobra.Command {
	var content, start, end, projectID string
	var tags []string
	var fixed bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.UpdateEvent(ctx, args[0], engine.EventCreateOptions{
					Content:   content,
					Tags:      tags,
					StartTime: start,
					EndTime:   end,
					IsFixed:   fixed,
					ProjectID: optionalString(projectID),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "event description")
	cmd.Flags().StringVar(&start, "start", "", "start time (ISO 8601)")
	cmd.Flags().StringVar(&end, "end", "", "end time (ISO 8601)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags")
	cmd.Flags().BoolVar(&fixed, "fixed", false, "fixed events block planner capacity")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("content")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func eventDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteEvent(ctx, args[0])
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks carry an estimated duration, an optional deadline and dependencies on other tasks. Statuses go TODO -> IN_PROGRESS -> COMPLETED.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskDepsCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var id, content, status, deadline, projectID string
	var tags, deps []string
	var duration int
	cmd := &cobra.Command{
		Use:     "create",
		Aliases: []string{"add"},
		Short:   "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
					ID:                       id,
					Content:                  content,
					Tags:                     tags,
					Status:                   status,
					Deadline:                 optionalString(deadline),
					EstimatedDurationMinutes: duration,
					ProjectID:                optionalString(projectID),
					DependencyIDs:            deps,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "task id (generated when omitted)")
	cmd.Flags().StringVar(&content, "content", "", "task description")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags")
	cmd.Flags().StringVar(&status, "status", "", "TODO, IN_PROGRESS or COMPLETED")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (ISO 8601)")
	cmd.Flags().IntVar(&duration, "duration", 0, "estimated duration in minutes")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringSliceVar(&deps, "depends-on", nil, "predecessor task ids")
	_ = cmd.MarkFlagRequired("content")
	_ = cmd.MarkFlagRequired("duration")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, projectID, tag string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				filters := repoTaskFilters(status, projectID, limit, offset)
				if tag != "" {
					filters.Tags = []string{tag}
				}
				tasks, err := e.Repo.ListTasks(ctx, filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Content", "Status", "Deadline", "Minutes", "Depends on"})
				for _, t := range tasks {
					deadline := ""
					if t.Deadline != nil {
						deadline = *t.Deadline
					}
					tw.AppendRow(table.Row{t.ID, t.Content, t.Status, deadline, t.EstimatedDurationMinutes, strings.Join(t.DependencyIDs, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&projectID, "project", "", "project id filter")
	cmd.Flags().StringVar(&tag, "tag", "", "tag filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "results to skip")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var content, status, deadline, projectID string
	var tags, deps []string
	var duration int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts engine.TaskUpdateOptions
			if cmd.Flags().Changed("content") {
				opts.Content = &content
			}
			if cmd.Flags().Changed("tags") {
				opts.Tags = tags
				opts.TagsProvided = true
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("deadline") {
				opts.Deadline = optionalString(deadline)
				opts.DeadlineProvided = true
			}
			if cmd.Flags().Changed("duration") {
				opts.EstimatedDurationMinutes = &duration
			}
			if cmd.Flags().Changed("project") {
				opts.ProjectID = optionalString(projectID)
				opts.ProjectIDProvided = true
			}
			if cmd.Flags().Changed("depends-on") {
				opts.DependencyIDs = &deps
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "task description")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags")
	cmd.Flags().StringVar(&status, "status", "", "TODO, IN_PROGRESS or COMPLETED")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (empty clears)")
	cmd.Flags().IntVar(&duration, "duration", 0, "estimated duration in minutes")
	cmd.Flags().StringVar(&projectID, "project", "", "project id (empty clears)")
	cmd.Flags().StringSliceVar(&deps, "depends-on", nil, "predecessor task ids (replaces the set)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task and its dependency edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, args[0])
			})
		},
	}
}

func taskDepsCmd() *cobra.Command {
	var set []string
	cmd := &cobra.Command{
		Use:   "deps <id>",
		Short: "Show or replace a task's dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if cmd.Flags().Changed("set") {
					deps, err := e.ReplaceTaskDependencies(ctx, args[0], set)
					if err != nil {
						return err
					}
					return printJSONOrTable(deps)
				}
				if _, err := e.Repo.GetTask(ctx, args[0]); err != nil {
					return err
				}
				deps, err := e.Repo.ListTaskDependencies(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(deps)
			})
		},
	}
	cmd.Flags().StringSliceVar(&set, "set", nil, "replace the predecessor set")
	return cmd
}

func routineCmd() *cobra.Command {
	rt := &cobra.Command{Use: "routine", Short: "Manage routines and recurrence rules"}
	rt.AddCommand(routineCreateCmd())
	rt.AddCommand(routineListCmd())
	rt.AddCommand(routineUpdateCmd())
	rt.AddCommand(routineDeleteCmd())
	rt.AddCommand(routineRuleCmd())
	return rt
}

func routineCreateCmd() *cobra.Command {
	var id, name, template, projectID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a routine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rt, err := e.CreateRoutine(ctx, engine.RoutineCreateOptions{
					ID:           id,
					Name:         name,
					TaskTemplate: template,
					ProjectID:    optionalString(projectID),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rt)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "routine id (generated when omitted)")
	cmd.Flags().StringVar(&name, "name", "", "routine name")
	cmd.Flags().StringVar(&template, "template", "", "task content template")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func routineListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List routines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListRoutines(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id filter")
	return cmd
}

func routineUpdateCmd() *cobra.Command {
	var name, template string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a routine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var namePtr, templatePtr *string
			if cmd.Flags().Changed("name") {
				namePtr = &name
			}
			if cmd.Flags().Changed("template") {
				templatePtr = &template
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rt, err := e.UpdateRoutine(ctx, args[0], namePtr, templatePtr)
				if err != nil {
					return err
				}
				return printJSONOrTable(rt)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "routine name")
	cmd.Flags().StringVar(&template, "template", "", "task content template")
	return cmd
}

func routineDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a routine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteRoutine(ctx, args[0])
			})
		},
	}
}

func routineRuleCmd() *cobra.Command {
	rule := &cobra.Command{Use: "rule", Short: "Manage recurrence rules"}

	var cadence, startAt, endAt string
	var interval int
	add := &cobra.Command{
		Use:   "add <routine-id>",
		Short: "Add a recurrence rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.AddRecurringRule(ctx, args[0], cadence, interval, startAt, optionalString(endAt))
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	add.Flags().StringVar(&cadence, "cadence", "weekly", "daily, weekly or monthly")
	add.Flags().IntVar(&interval, "interval", 1, "every N cadences")
	add.Flags().StringVar(&startAt, "start", "", "first occurrence (ISO 8601)")
	add.Flags().StringVar(&endAt, "end", "", "last occurrence (ISO 8601)")
	_ = add.MarkFlagRequired("start")
	rule.AddCommand(add)

	list := &cobra.Command{
		Use:   "list <routine-id>",
		Short: "List recurrence rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rules, err := e.Repo.ListRecurringRules(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rules)
			})
		},
	}
	rule.AddCommand(list)

	remove := &cobra.Command{
		Use:   "remove <rule-id>",
		Short: "Remove a recurrence rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteRecurringRule(ctx, args[0])
			})
		},
	}
	rule.AddCommand(remove)
	return rule
}

func planCmd() *cobra.Command {
	var from, to string
	var focusStart, focusEnd, dailyCap int
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan stored tasks into the window",
		Long:  "Builds a greedy plan for incomplete stored tasks around fixed events, respecting focus hours, the daily minute cap and dependency order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.PlanStoredOptions{WindowStart: from, WindowEnd: to}
				if cmd.Flags().Changed("focus-start") {
					opts.FocusHoursStart = &focusStart
				}
				if cmd.Flags().Changed("focus-end") {
					opts.FocusHoursEnd = &focusEnd
				}
				if cmd.Flags().Changed("daily-cap") {
					opts.MaxPlannedMinutesPerDay = &dailyCap
				}
				resp, err := e.PlanStored(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(resp)
				}
				printPlan(resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "window start (ISO 8601)")
	cmd.Flags().StringVar(&to, "to", "", "window end (ISO 8601)")
	cmd.Flags().IntVar(&focusStart, "focus-start", 0, "focus hours start (default from config)")
	cmd.Flags().IntVar(&focusEnd, "focus-end", 0, "focus hours end (default from config)")
	cmd.Flags().IntVar(&dailyCap, "daily-cap", 0, "max planned minutes per day (default from config)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func printPlan(resp planner.Response) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Type", "Ref", "Start", "End", "Rationale"})
	for _, b := range resp.Blocks {
		tw.AppendRow(table.Row{b.BlockType, b.RefID, b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339), b.Rationale})
	}
	tw.Render()
	if len(resp.UnmetTaskWarnings) == 0 {
		return
	}
	fmt.Println("Unmet tasks:")
	for _, w := range resp.UnmetTaskWarnings {
		fmt.Printf("  %s: %d minutes unplanned (%s)\n", w.TaskID, w.MinutesUnplanned, w.Reason)
	}
}

func lintCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Lint stored events for schedule problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				diags, summary, err := e.LintStored(ctx, from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"diagnostics": diags, "summary": summary})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Severity", "Code", "Message"})
				for _, d := range diags {
					tw.AppendRow(table.Row{d.Severity, d.Code, d.Message})
				}
				tw.Render()
				fmt.Println("Severity counts:")
				for severity, n := range summary.SeverityCounts {
					fmt.Printf("  %s: %d\n", severity, n)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start time lower bound")
	cmd.Flags().StringVar(&to, "to", "", "start time upper bound")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the audit log"}

	var n int
	var entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Repo.LatestAuditEntries(ctx, n, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of entries")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	log.AddCommand(tail)
	return log
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer appCtx.Close()
			if _, err := appCtx.EnsureProject(cmd.Context()); err != nil {
				return err
			}
			cfg := appCtx.Config
			if addr == "" {
				addr = cfg.Server.Bind
			}
			if !cmd.Flags().Changed("base-path") {
				basePath = cfg.Server.BasePath
			}
			logger := newLogger(cfg.Log.Level)

			authCfg := server.AuthConfig{
				Enabled:   cfg.Auth.Enabled,
				JWTSecret: cfg.Auth.JWTSecret,
				APIKeys:   cfg.Auth.APIKeys,
			}
			if secret := os.Getenv("LIFELINE_JWT_SECRET"); secret != "" {
				authCfg.Enabled = true
				authCfg.JWTSecret = secret
			}
			handler, err := server.New(server.Config{
				Engine:          appCtx.Engine,
				BasePath:        basePath,
				Auth:            authCfg,
				Logger:          logger,
				RateLimitPerSec: cfg.Server.RateLimitPerSec,
				RateLimitBurst:  cfg.Server.RateLimitBurst,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				timeout := time.Duration(cfg.Server.ShutdownTimeoutMS) * time.Millisecond
				if timeout <= 0 {
					timeout = 5 * time.Second
				}
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info().Str("addr", addr).Str("base_path", basePath).Msg("server.listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	appCtx, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer appCtx.Close()
	return fn(ctx, appCtx.Engine)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func repoEventFilters(from, to, projectID string, limit, offset int) repo.EventFilters {
	return repo.EventFilters{
		StartFrom: from,
		StartTo:   to,
		ProjectID: projectID,
		Limit:     limit,
		Offset:    offset,
	}
}

func repoTaskFilters(status, projectID string, limit, offset int) repo.TaskFilters {
	return repo.TaskFilters{
		Status:    status,
		ProjectID: projectID,
		Limit:     limit,
		Offset:    offset,
	}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
