// Package app wires a workspace together: database, migrations, config,
// store and engine.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"demandflow/internal/config"
	"demandflow/internal/db"
	"demandflow/internal/engine"
	"demandflow/internal/migrate"
	"demandflow/internal/store/sqlite"
)

// App is an opened workspace.
type App struct {
	Workspace string
	DB        *sql.DB
	Store     *sqlite.Store
	Config    *config.Config
	Engine    *engine.Engine
}

// Open bootstraps the workspace: opens the database, applies pending
// migrations, loads config (defaults when the file is absent) and
// hydrates the engine snapshot.
func Open(ctx context.Context, workspace string) (*App, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	st := sqlite.New(conn)
	eng := engine.New(st, cfg)
	if err := eng.Refresh(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return &App{Workspace: workspace, DB: conn, Store: st, Config: cfg, Engine: eng}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
