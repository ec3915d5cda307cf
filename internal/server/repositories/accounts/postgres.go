// Package accounts provides the PostgreSQL-backed account repository,
// including the per-account monotonic version counter.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wayfarerapp/wayfarer-server/internal/common"
	"github.com/wayfarerapp/wayfarer-server/internal/dbx"
)

// PostgresRepository implements account storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Ensure inserts the account row with a zero counter if it does not exist.
func (r *PostgresRepository) Ensure(ctx context.Context, accountID string) error {
	query := `
		INSERT INTO accounts (id)
		VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// NextVersion increments the account counter and returns the new value.
// The UPDATE takes a row-level lock, so two concurrent callers for the
// same account never observe or assign the same version.
func (r *PostgresRepository) NextVersion(ctx context.Context, accountID string) (int64, error) {
	query := `
		UPDATE accounts SET current_version = current_version + 1
		WHERE id = $1
		RETURNING current_version
	`
	var version int64
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

// CurrentVersion reads the counter without advancing it. Unknown accounts
// report version 0, matching a fresh counter.
func (r *PostgresRepository) CurrentVersion(ctx context.Context, accountID string) (int64, error) {
	query := `
		SELECT current_version FROM accounts
		WHERE id = $1
	`
	var version int64
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}
