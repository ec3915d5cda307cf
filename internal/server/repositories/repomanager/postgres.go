// Package repomanager provides a concrete RepositoryManager for
// PostgreSQL, wiring together repository constructors and database
// migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/wayfarerapp/wayfarer-server/internal/dbx"
	"github.com/wayfarerapp/wayfarer-server/internal/server/migrations"
	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/accounts"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/conflicts"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/devices"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/envelopes"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/exportjobs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository
// implementations and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed
// RepositoryManager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

// Accounts returns an accounts.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewPostgresRepository(db)
}

// Devices returns a devices.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Devices(db dbx.DBTX) devices.Repository {
	return devices.NewPostgresRepository(db)
}

// Envelopes returns an envelopes.Repository bound to the provided DBTX
// and store.
func (m *PostgresRepositoryManager) Envelopes(db dbx.DBTX, store models.Store) envelopes.Repository {
	return envelopes.NewPostgresRepository(db, store)
}

// Conflicts returns a conflicts.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Conflicts(db dbx.DBTX) conflicts.Repository {
	return conflicts.NewPostgresRepository(db)
}

// ExportJobs returns an exportjobs.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) ExportJobs(db dbx.DBTX) exportjobs.Repository {
	return exportjobs.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}
