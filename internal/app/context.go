package app

import (
	"context"
	"database/sql"
	"errors"

	"lifeline/internal/config"
	"lifeline/internal/db"
	"lifeline/internal/engine"
	"lifeline/internal/migrate"
	"lifeline/internal/repo"
)

// Context bundles the opened workspace resources for one CLI invocation.
type Context struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
}

// Open loads the workspace config (falling back to defaults when no
// lifeline.yml exists), opens the database and applies pending migrations.
func Open(workspace string) (*Context, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("lifeline")
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Context{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Engine:    engine.New(conn, cfg),
	}, nil
}

func (c *Context) Close() error {
	return c.DB.Close()
}

// EnsureProject creates the configured project row when it does not exist
// yet, so freshly initialized workspaces can attach tasks to it immediately.
func (c *Context) EnsureProject(ctx context.Context) (string, error) {
	projectID := c.Config.Project.ID
	if projectID == "" {
		return "", errors.New("project id not configured; run lifeline init")
	}
	if _, err := c.Engine.Repo.GetProject(ctx, projectID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
		if _, err := c.Engine.CreateProject(ctx, projectID, c.Config.Project.Name, ""); err != nil {
			return "", err
		}
	}
	return projectID, nil
}
