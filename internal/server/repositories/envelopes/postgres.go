// Package envelopes provides PostgreSQL-backed repositories for the two
// sync envelope stores. The plain and encrypted tables share one envelope
// shape; a repository instance is bound to exactly one of them.
package envelopes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wayfarerapp/wayfarer-server/internal/common"
	"github.com/wayfarerapp/wayfarer-server/internal/dbx"
	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
)

// PostgresRepository implements envelope storage for one store over a
// dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db    dbx.DBTX
	store models.Store
	table string
}

// NewPostgresRepository constructs a repository bound to the given DBTX
// and store.
func NewPostgresRepository(db dbx.DBTX, store models.Store) *PostgresRepository {
	table := "entities_plain"
	if store == models.StoreEncrypted {
		table = "entities_encrypted"
	}
	return &PostgresRepository{db: db, store: store, table: table}
}

// Store reports which store this repository is bound to.
func (r *PostgresRepository) Store() models.Store {
	return r.store
}

func (r *PostgresRepository) scanRow(row interface{ Scan(...any) error }, item *models.Envelope) error {
	return row.Scan(
		&item.ID, &item.AccountID, &item.ServerVersion, &item.UpdatedAt,
		&item.DeletedAt, &item.Payload, &item.OriginDeviceID,
	)
}

// Get returns the stored envelope for the entity, or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, accountID, entityID string) (*models.Envelope, error) {
	query := fmt.Sprintf(`
		SELECT id, account_id, server_version, updated_at, deleted_at, payload, origin_device_id
		FROM %s
		WHERE account_id = $1 AND id = $2
	`, r.table)

	item := &models.Envelope{IsEncrypted: r.store == models.StoreEncrypted}
	err := r.scanRow(r.db.QueryRowContext(ctx, query, accountID, entityID), item)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return item, nil
}

// Upsert writes the envelope by (account_id, id), replacing any previous
// version held in this store.
func (r *PostgresRepository) Upsert(ctx context.Context, env *models.Envelope) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, account_id, server_version, updated_at, deleted_at, payload, origin_device_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id, id)
		DO UPDATE SET
			server_version = EXCLUDED.server_version,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at,
			payload = EXCLUDED.payload,
			origin_device_id = EXCLUDED.origin_device_id
	`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		env.ID, env.AccountID, env.ServerVersion, env.UpdatedAt, env.DeletedAt,
		env.Payload, env.OriginDeviceID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Delete removes the entity's envelope from this store if present.
func (r *PostgresRepository) Delete(ctx context.Context, accountID, entityID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE account_id = $1 AND id = $2
	`, r.table)

	if _, err := r.db.ExecContext(ctx, query, accountID, entityID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SelectUpdated returns envelopes with server_version > minVersion written
// by devices other than excludeDeviceID, ordered by ascending version.
func (r *PostgresRepository) SelectUpdated(ctx context.Context, accountID string, minVersion int64, excludeDeviceID string) ([]*models.Envelope, error) {
	query := fmt.Sprintf(`
		SELECT id, account_id, server_version, updated_at, deleted_at, payload, origin_device_id
		FROM %s
		WHERE account_id = $1 AND server_version > $2 AND origin_device_id <> $3
		ORDER BY server_version
	`, r.table)

	rows, err := r.db.QueryContext(ctx, query, accountID, minVersion, excludeDeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to select envelopes: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// SelectAll returns every envelope of the account in this store, ordered
// by ascending version.
func (r *PostgresRepository) SelectAll(ctx context.Context, accountID string) ([]*models.Envelope, error) {
	query := fmt.Sprintf(`
		SELECT id, account_id, server_version, updated_at, deleted_at, payload, origin_device_id
		FROM %s
		WHERE account_id = $1
		ORDER BY server_version
	`, r.table)

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to select envelopes: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

func (r *PostgresRepository) collect(rows *sql.Rows) ([]*models.Envelope, error) {
	var result []*models.Envelope
	for rows.Next() {
		item := models.Envelope{IsEncrypted: r.store == models.StoreEncrypted}
		if err := r.scanRow(rows, &item); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
