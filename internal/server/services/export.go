package services

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarerapp/wayfarer-server/internal/common"
	"github.com/wayfarerapp/wayfarer-server/internal/logging"
	"github.com/wayfarerapp/wayfarer-server/internal/server/mail"
	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/repomanager"
	"github.com/wayfarerapp/wayfarer-server/internal/server/storage"
	"github.com/wayfarerapp/wayfarer-server/internal/server/worker"
)

const archiveContentType = "application/zip"

// ExportService builds downloadable archives of an account's data. A
// request only persists a PENDING job; the archive is built by a
// supervised background task, and a recurring sweep expires stale
// artifacts.
type ExportService struct {
	db        *sql.DB
	rm        repomanager.RepositoryManager
	store     storage.ObjectStorage
	mailer    mail.Mailer
	pool      *worker.Pool
	logger    logging.Logger
	retention time.Duration

	now func() time.Time
}

// NewExportService constructs an ExportService. retention bounds how long
// a completed archive stays downloadable.
func NewExportService(db *sql.DB, rm repomanager.RepositoryManager, store storage.ObjectStorage,
	mailer mail.Mailer, pool *worker.Pool, logger logging.Logger, retention time.Duration) *ExportService {
	return &ExportService{
		db:        db,
		rm:        rm,
		store:     store,
		mailer:    mailer,
		pool:      pool,
		logger:    logger.With("module", "export"),
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Request persists a PENDING job, schedules its processing and returns
// immediately. A failure inside processing cannot reach the caller.
func (s *ExportService) Request(ctx context.Context, accountID, deviceID, notifyEmail string) (*models.ExportJob, error) {
	if accountID == "" || deviceID == "" {
		return nil, common.ErrorValidation
	}

	job := &models.ExportJob{
		ID:        uuid.New().String(),
		AccountID: accountID,
		DeviceID:  deviceID,
		Status:    models.JobPending,
		CreatedAt: s.now(),
	}
	job.UpdatedAt = job.CreatedAt
	if notifyEmail != "" {
		job.NotifyEmail = &notifyEmail
	}

	if err := s.rm.ExportJobs(s.db).Create(ctx, job); err != nil {
		return nil, err
	}

	jobID := job.ID
	s.pool.Submit("export:"+jobID, func(ctx context.Context) {
		s.process(ctx, jobID)
	})

	s.logger.Info(ctx, "export requested", "job_id", jobID, "account_id", accountID)
	return job, nil
}

// GetStatus returns the job for polling. A job owned by another account
// is reported as not found, never as forbidden.
func (s *ExportService) GetStatus(ctx context.Context, jobID, accountID string) (*models.ExportJob, error) {
	if jobID == "" || accountID == "" {
		return nil, common.ErrorValidation
	}

	job, err := s.rm.ExportJobs(s.db).Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.AccountID != accountID {
		return nil, common.ErrorNotFound
	}
	return job, nil
}

// process runs one job to a terminal state. Storage failures fail the
// job; a notification failure is logged and swallowed because the export
// itself succeeded.
func (s *ExportService) process(ctx context.Context, jobID string) {
	jobs := s.rm.ExportJobs(s.db)

	job, err := jobs.Get(ctx, jobID)
	if err != nil {
		s.logger.Error(ctx, "export job vanished before processing", "job_id", jobID, "error", err.Error())
		return
	}

	if err := jobs.MarkRunning(ctx, jobID, s.now()); err != nil {
		s.logger.Error(ctx, "export job not startable", "job_id", jobID, "error", err.Error())
		return
	}

	archive, err := s.buildArchive(ctx, job)
	if err != nil {
		s.fail(ctx, jobID, "archive build failed", err)
		return
	}

	key := fmt.Sprintf("exports/%s/%s.zip", job.AccountID, job.ID)
	if err := s.store.Put(ctx, key, archiveContentType, archive); err != nil {
		s.fail(ctx, jobID, "archive upload failed", err)
		return
	}

	download, err := s.store.PresignDownload(ctx, key)
	if err != nil {
		s.fail(ctx, jobID, "presign failed", err)
		return
	}

	now := s.now()
	expiresAt := now.Add(s.retention)
	if err := jobs.MarkCompleted(ctx, jobID, download.URL, key, expiresAt, now); err != nil {
		s.logger.Error(ctx, "export job completion not recorded", "job_id", jobID, "error", err.Error())
		return
	}

	s.logger.Info(ctx, "export completed", "job_id", jobID, "key", key, "expires_at", expiresAt)

	if job.NotifyEmail != nil {
		if err := s.mailer.SendExportReady(ctx, *job.NotifyEmail, download.URL); err != nil {
			s.logger.Warn(ctx, "export ready notification failed", "job_id", jobID, "error", err.Error())
		}
	}
}

func (s *ExportService) fail(ctx context.Context, jobID, msg string, cause error) {
	s.logger.Error(ctx, msg, "job_id", jobID, "error", cause.Error())
	if err := s.rm.ExportJobs(s.db).MarkFailed(ctx, jobID, s.now()); err != nil {
		s.logger.Error(ctx, "export job failure not recorded", "job_id", jobID, "error", err.Error())
	}
}

// exportManifest is the archive's top-level metadata entry.
type exportManifest struct {
	AccountID  string    `json:"account_id"`
	DeviceID   string    `json:"device_id"`
	JobID      string    `json:"job_id"`
	ExportedAt time.Time `json:"exported_at"`
}

// exportEnvelope is the JSON shape of one synced entity inside the
// archive.
type exportEnvelope struct {
	ID            string     `json:"id"`
	ServerVersion int64      `json:"server_version"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	Payload       string     `json:"payload"`
	IsEncrypted   bool       `json:"is_encrypted"`
	OriginDevice  string     `json:"origin_device_id"`
}

// buildArchive produces the zip: a manifest plus a dump of the account's
// envelopes from both stores. Encrypted payloads are exported as the
// opaque ciphertext the clients uploaded.
func (s *ExportService) buildArchive(ctx context.Context, job *models.ExportJob) ([]byte, error) {
	plain, err := s.rm.Envelopes(s.db, models.StorePlain).SelectAll(ctx, job.AccountID)
	if err != nil {
		return nil, err
	}
	encrypted, err := s.rm.Envelopes(s.db, models.StoreEncrypted).SelectAll(ctx, job.AccountID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	manifest := exportManifest{
		AccountID:  job.AccountID,
		DeviceID:   job.DeviceID,
		JobID:      job.ID,
		ExportedAt: s.now(),
	}
	if err := writeJSONEntry(zw, "manifest.json", manifest); err != nil {
		return nil, err
	}
	if err := writeJSONEntry(zw, "entities.json", toExportEnvelopes(plain)); err != nil {
		return nil, err
	}
	if err := writeJSONEntry(zw, "entities_encrypted.json", toExportEnvelopes(encrypted)); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toExportEnvelopes(items []*models.Envelope) []exportEnvelope {
	result := make([]exportEnvelope, 0, len(items))
	for _, e := range items {
		result = append(result, exportEnvelope{
			ID:            e.ID,
			ServerVersion: e.ServerVersion,
			UpdatedAt:     e.UpdatedAt,
			DeletedAt:     e.DeletedAt,
			Payload:       e.Payload,
			IsEncrypted:   e.IsEncrypted,
			OriginDevice:  e.OriginDeviceID,
		})
	}
	return result
}

func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SweepExpired expires completed jobs whose retention window has passed:
// best-effort delete of the backing object, then the EXPIRED transition.
// Re-sweeping is a no-op because expired rows lose their download key.
func (s *ExportService) SweepExpired(ctx context.Context) {
	now := s.now()
	jobs := s.rm.ExportJobs(s.db)

	expired, err := jobs.SelectExpired(ctx, now)
	if err != nil {
		s.logger.Error(ctx, "expired jobs query failed", "error", err.Error())
		return
	}

	for _, job := range expired {
		if job.DownloadKey != nil {
			if err := s.store.Delete(ctx, *job.DownloadKey); err != nil {
				// Deletion failures are not fatal to the sweep.
				s.logger.Warn(ctx, "export object delete failed",
					"job_id", job.ID, "key", *job.DownloadKey, "error", err.Error())
			}
		}
		if err := jobs.MarkExpired(ctx, job.ID, now); err != nil {
			s.logger.Error(ctx, "export job expiry not recorded", "job_id", job.ID, "error", err.Error())
			continue
		}
		s.logger.Info(ctx, "export expired", "job_id", job.ID)
	}
}
