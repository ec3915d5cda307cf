package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"

	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/accounts"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/conflicts"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/devices"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/envelopes"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/exportjobs"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestNewPostgresRepositoryManager_ImplementsInterface(t *testing.T) {
	var _ RepositoryManager = NewPostgresRepositoryManager()
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := NewPostgresRepositoryManager()

	var _ accounts.Repository = m.Accounts(db)
	var _ devices.Repository = m.Devices(db)
	var _ conflicts.Repository = m.Conflicts(db)
	var _ exportjobs.Repository = m.ExportJobs(db)
	var _ envelopes.Repository = m.Envelopes(db, models.StorePlain)
	var _ envelopes.Repository = m.Envelopes(db, models.StoreEncrypted)
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	m := NewPostgresRepositoryManager()
	if err := m.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("migration failed")
	}
	defer func() { gooseUpContext = orig }()

	m := NewPostgresRepositoryManager()
	if err := m.RunMigrations(context.Background(), db); err == nil {
		t.Fatal("expected error")
	}
}
