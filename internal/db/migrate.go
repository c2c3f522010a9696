package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	// pgx stdlib driver ("pgx") for database/sql, used only by goose.
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var gooseMu sync.Mutex

// Migrate opens dsn with the pgx stdlib driver and applies all pending
// migrations for users, transactions and roasts.
func Migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()
	return run(ctx, db, func(ctx context.Context, db *sql.DB) error {
		return goose.UpContext(ctx, db, "migrations")
	})
}

// Status prints the applied/pending state of every migration through goose's logger.
func Status(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()
	return run(ctx, db, func(ctx context.Context, db *sql.DB) error {
		return goose.StatusContext(ctx, db, "migrations")
	})
}

func run(ctx context.Context, db *sql.DB, fn func(context.Context, *sql.DB) error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := fn(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
