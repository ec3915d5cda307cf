package accounts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/wayfarerapp/wayfarer-server/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestEnsure_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+accounts\s*\(id\)\s*VALUES\s*\(\$1\)\s*ON\s+CONFLICT\s*\(id\)\s*DO\s+NOTHING\s*$`

	mock.ExpectExec(q).
		WithArgs("acct-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Ensure(context.Background(), "acct-1"); err != nil {
		t.Fatalf("Ensure error: %v", err)
	}
}

func TestEnsure_ExistingAccountIsNoop(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+accounts`

	mock.ExpectExec(q).
		WithArgs("acct-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Ensure(context.Background(), "acct-1"); err != nil {
		t.Fatalf("Ensure error: %v", err)
	}
}

func TestNextVersion_Increments(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+accounts\s+SET\s+current_version\s*=\s*current_version\s*\+\s*1\s+WHERE\s+id\s*=\s*\$1\s+RETURNING\s+current_version\s*$`

	rows := sqlmock.NewRows([]string{"current_version"}).AddRow(8)
	mock.ExpectQuery(q).
		WithArgs("acct-1").
		WillReturnRows(rows)

	got, err := repo.NextVersion(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("NextVersion error: %v", err)
	}
	if got != 8 {
		t.Fatalf("expected version 8, got %d", got)
	}
}

func TestNextVersion_UnknownAccount(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+accounts\s+SET\s+current_version`

	mock.ExpectQuery(q).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.NextVersion(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestCurrentVersion_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+current_version\s+FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1\s*$`

	rows := sqlmock.NewRows([]string{"current_version"}).AddRow(5)
	mock.ExpectQuery(q).
		WithArgs("acct-1").
		WillReturnRows(rows)

	got, err := repo.CurrentVersion(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("CurrentVersion error: %v", err)
	}
	if got != 5 {
		t.Fatalf("expected version 5, got %d", got)
	}
}

func TestCurrentVersion_UnknownAccountIsZero(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+current_version\s+FROM\s+accounts`

	mock.ExpectQuery(q).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.CurrentVersion(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("CurrentVersion error: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected version 0, got %d", got)
	}
}

func TestCurrentVersion_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+current_version\s+FROM\s+accounts`

	mock.ExpectQuery(q).
		WithArgs("acct-1").
		WillReturnError(errors.New("db down"))

	_, err := repo.CurrentVersion(context.Background(), "acct-1")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
