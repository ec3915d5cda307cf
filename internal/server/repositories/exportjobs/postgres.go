// Package exportjobs provides the PostgreSQL-backed export job
// repository. State transitions are guarded in SQL so that a jobs row can
// never leave a terminal state, whatever the callers race on.
package exportjobs

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

// PostgresRepository implements export job storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new PENDING job.
func (r *PostgresRepository) Create(ctx context.Context, job *models.ExportJob) error {
	query := `
		INSERT INTO export_jobs (id, account_id, device_id, status, created_at, updated_at, notify_email)
		VALUES ($1, $2, $3, $4, $5, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.AccountID, job.DeviceID, job.Status, job.CreatedAt, job.NotifyEmail)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns the job by id, or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, jobID string) (*models.ExportJob, error) {
	query := `
		SELECT id, account_id, device_id, status, created_at, updated_at,
			download_url, download_key, expires_at, notify_email
		FROM export_jobs
		WHERE id = $1
	`
	item := &models.ExportJob{}
	err := r.db.QueryRowContext(ctx, query, jobID).Scan(
		&item.ID, &item.AccountID, &item.DeviceID, &item.Status,
		&item.CreatedAt, &item.UpdatedAt, &item.DownloadURL, &item.DownloadKey,
		&item.ExpiresAt, &item.NotifyEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return item, nil
}

func (r *PostgresRepository) transition(ctx context.Context, res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrJobTerminal
	}
	return nil
}

// MarkRunning transitions PENDING -> RUNNING.
func (r *PostgresRepository) MarkRunning(ctx context.Context, jobID string, at time.Time) error {
	query := `
		UPDATE export_jobs SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, jobID, models.JobRunning, at, models.JobPending)
	return r.transition(ctx, res, err)
}

// MarkCompleted transitions RUNNING -> COMPLETED.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, jobID, downloadURL, downloadKey string, expiresAt, at time.Time) error {
	query := `
		UPDATE export_jobs
		SET status = $2, updated_at = $3, download_url = $4, download_key = $5, expires_at = $6
		WHERE id = $1 AND status = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		jobID, models.JobCompleted, at, downloadURL, downloadKey, expiresAt, models.JobRunning)
	return r.transition(ctx, res, err)
}

// MarkFailed transitions PENDING or RUNNING -> FAILED.
func (r *PostgresRepository) MarkFailed(ctx context.Context, jobID string, at time.Time) error {
	query := `
		UPDATE export_jobs SET status = $2, updated_at = $3
		WHERE id = $1 AND status IN ($4, $5)
	`
	res, err := r.db.ExecContext(ctx, query,
		jobID, models.JobFailed, at, models.JobPending, models.JobRunning)
	return r.transition(ctx, res, err)
}

// MarkExpired transitions COMPLETED -> EXPIRED and clears the download
// url. The key column is cleared too so a re-sweep skips the row.
func (r *PostgresRepository) MarkExpired(ctx context.Context, jobID string, at time.Time) error {
	query := `
		UPDATE export_jobs
		SET status = $2, updated_at = $3, download_url = NULL, download_key = NULL
		WHERE id = $1 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, jobID, models.JobExpired, at, models.JobCompleted)
	return r.transition(ctx, res, err)
}

// SelectExpired returns jobs whose expires_at has passed and which still
// hold a download key, oldest expiry first.
func (r *PostgresRepository) SelectExpired(ctx context.Context, now time.Time) ([]*models.ExportJob, error) {
	query := `
		SELECT id, account_id, device_id, status, created_at, updated_at,
			download_url, download_key, expires_at, notify_email
		FROM export_jobs
		WHERE expires_at IS NOT NULL AND expires_at < $1 AND download_key IS NOT NULL
		ORDER BY expires_at
	`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select export jobs: %w", err)
	}
	defer rows.Close()

	var result []*models.ExportJob
	for rows.Next() {
		var item models.ExportJob
		if err := rows.Scan(
			&item.ID, &item.AccountID, &item.DeviceID, &item.Status,
			&item.CreatedAt, &item.UpdatedAt, &item.DownloadURL, &item.DownloadKey,
			&item.ExpiresAt, &item.NotifyEmail,
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
