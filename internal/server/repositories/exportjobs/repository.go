package exportjobs

import (
	"context"
	"time"

	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
)

// Repository persists export job lifecycle records. The Mark* methods
// enforce the PENDING -> RUNNING -> {COMPLETED|FAILED} and
// COMPLETED -> EXPIRED transitions at the row level: a transition from
// any other state returns common.ErrJobTerminal.
type Repository interface {
	// Create inserts a new PENDING job.
	Create(ctx context.Context, job *models.ExportJob) error

	// Get returns the job by id, or common.ErrorNotFound.
	Get(ctx context.Context, jobID string) (*models.ExportJob, error)

	// MarkRunning transitions PENDING -> RUNNING.
	MarkRunning(ctx context.Context, jobID string, at time.Time) error

	// MarkCompleted transitions RUNNING -> COMPLETED with the archive's
	// download url, storage key and expiry.
	MarkCompleted(ctx context.Context, jobID, downloadURL, downloadKey string, expiresAt, at time.Time) error

	// MarkFailed transitions RUNNING -> FAILED. PENDING jobs that never
	// started are also allowed to fail.
	MarkFailed(ctx context.Context, jobID string, at time.Time) error

	// MarkExpired transitions COMPLETED -> EXPIRED and clears the
	// download url.
	MarkExpired(ctx context.Context, jobID string, at time.Time) error

	// SelectExpired returns jobs whose expires_at has passed and which
	// still hold a download key.
	SelectExpired(ctx context.Context, now time.Time) ([]*models.ExportJob, error)
}
