// Package conflicts provides the PostgreSQL-backed conflict repository.
package conflicts

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

// PostgresRepository implements conflict storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new conflict row.
func (r *PostgresRepository) Create(ctx context.Context, conflict *models.Conflict) error {
	query := `
		INSERT INTO conflicts (id, entity_id, account_id, origin_device_id,
			device_version, server_version, server_payload, device_payload,
			is_encrypted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		conflict.ID, conflict.EntityID, conflict.AccountID, conflict.OriginDeviceID,
		conflict.DeviceVersion, conflict.ServerVersion, conflict.ServerPayload,
		conflict.DevicePayload, conflict.IsEncrypted, conflict.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns the conflict by id, or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, conflictID string) (*models.Conflict, error) {
	query := `
		SELECT id, entity_id, account_id, origin_device_id, device_version,
			server_version, server_payload, device_payload, is_encrypted,
			created_at, resolved_at
		FROM conflicts
		WHERE id = $1
	`
	item := &models.Conflict{}
	err := r.db.QueryRowContext(ctx, query, conflictID).Scan(
		&item.ID, &item.EntityID, &item.AccountID, &item.OriginDeviceID,
		&item.DeviceVersion, &item.ServerVersion, &item.ServerPayload,
		&item.DevicePayload, &item.IsEncrypted, &item.CreatedAt, &item.ResolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return item, nil
}

// MarkResolved sets resolved_at on a pending conflict. The WHERE clause
// guards terminality: a conflict resolves at most once.
func (r *PostgresRepository) MarkResolved(ctx context.Context, conflictID string, resolvedAt time.Time) error {
	query := `
		UPDATE conflicts SET resolved_at = $2
		WHERE id = $1 AND resolved_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, conflictID, resolvedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrConflictResolved
	}
	return nil
}

// SelectPending returns the account's unresolved conflicts, oldest first.
func (r *PostgresRepository) SelectPending(ctx context.Context, accountID string) ([]*models.Conflict, error) {
	query := `
		SELECT id, entity_id, account_id, origin_device_id, device_version,
			server_version, server_payload, device_payload, is_encrypted,
			created_at, resolved_at
		FROM conflicts
		WHERE account_id = $1 AND resolved_at IS NULL
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to select conflicts: %w", err)
	}
	defer rows.Close()

	var result []*models.Conflict
	for rows.Next() {
		var item models.Conflict
		if err := rows.Scan(
			&item.ID, &item.EntityID, &item.AccountID, &item.OriginDeviceID,
			&item.DeviceVersion, &item.ServerVersion, &item.ServerPayload,
			&item.DevicePayload, &item.IsEncrypted, &item.CreatedAt, &item.ResolvedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
