package models

import "time"

// JobStatus is the lifecycle state of an export job.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobExpired   JobStatus = "EXPIRED"
)

// Terminal reports whether no further transition out of the status is
// allowed. COMPLETED still transitions to EXPIRED via housekeeping.
func (s JobStatus) Terminal() bool {
	return s == JobFailed || s == JobExpired
}

// ExportJob tracks one asynchronous account export from request to
// archive expiry. The export service owns the record for the duration of
// its life; callers only poll it.
type ExportJob struct {
	ID          string
	AccountID   string
	DeviceID    string
	Status      JobStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DownloadURL *string
	DownloadKey *string
	ExpiresAt   *time.Time
	NotifyEmail *string
}
