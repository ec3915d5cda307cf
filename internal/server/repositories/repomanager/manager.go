package repomanager

import (
	"context"
	"database/sql"

	"github.com/wayfarerapp/wayfarer-server/internal/dbx"
	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/accounts"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/conflicts"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/devices"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/envelopes"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/exportjobs"
)

// RepositoryManager vends repositories bound to a dbx.DBTX, so the same
// wiring works against the pooled connection and inside a transaction.
type RepositoryManager interface {
	Accounts(db dbx.DBTX) accounts.Repository
	Devices(db dbx.DBTX) devices.Repository
	Envelopes(db dbx.DBTX, store models.Store) envelopes.Repository
	Conflicts(db dbx.DBTX) conflicts.Repository
	ExportJobs(db dbx.DBTX) exportjobs.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
