// Package devices provides the PostgreSQL-backed device repository. The
// last_sync_at stamp it maintains feeds status queries only; delta
// correctness never depends on it.
package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wayfarerapp/wayfarer-server/internal/common"
	"github.com/wayfarerapp/wayfarer-server/internal/dbx"
	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
)

// PostgresRepository implements device storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the device row, or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, accountID, deviceID string) (*models.Device, error) {
	query := `
		SELECT id, account_id, created_at, last_sync_at, disabled_at
		FROM devices
		WHERE account_id = $1 AND id = $2
	`
	item := &models.Device{}
	err := r.db.QueryRowContext(ctx, query, accountID, deviceID).Scan(
		&item.ID, &item.AccountID, &item.CreatedAt, &item.LastSyncAt, &item.DisabledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return item, nil
}

// TouchSyncState upserts the device row and stamps last_sync_at.
func (r *PostgresRepository) TouchSyncState(ctx context.Context, accountID, deviceID string, syncedAt time.Time) error {
	query := `
		INSERT INTO devices (id, account_id, last_sync_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, id)
		DO UPDATE SET last_sync_at = EXCLUDED.last_sync_at
	`
	if _, err := r.db.ExecContext(ctx, query, deviceID, accountID, syncedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Disable soft-marks the device without touching its history.
func (r *PostgresRepository) Disable(ctx context.Context, accountID, deviceID string, disabledAt time.Time) error {
	query := `
		UPDATE devices SET disabled_at = $3
		WHERE account_id = $1 AND id = $2 AND disabled_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, accountID, deviceID, disabledAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
