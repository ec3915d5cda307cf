package httpapi

import (
	"time"

	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
	"github.com/wayfarerapp/wayfarer-server/internal/server/services"
)

// EnvelopeDTO is the wire shape of one sync envelope.
type EnvelopeDTO struct {
	ID            string     `json:"id"`
	ServerVersion int64      `json:"serverVersion"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
	Payload       string     `json:"payload"`
	IsEncrypted   bool       `json:"isEncrypted"`
	DeviceID      string     `json:"deviceId"`
}

// ConflictDTO adds the conflict identity and the device's stale version
// to the server/device payload pair.
type ConflictDTO struct {
	ConflictID    string    `json:"conflictId"`
	EntityID      string    `json:"entityId"`
	ServerVersion int64     `json:"serverVersion"`
	DeviceVersion int64     `json:"deviceVersion"`
	ServerPayload string    `json:"serverPayload"`
	DevicePayload string    `json:"devicePayload"`
	IsEncrypted   bool      `json:"isEncrypted"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SyncStatusDTO is the response of GET /sync/status.
type SyncStatusDTO struct {
	DeviceID            string     `json:"deviceId"`
	AccountID           string     `json:"accountId"`
	LatestServerVersion int64      `json:"latestServerVersion"`
	LastSyncAt          *time.Time `json:"lastSyncAt"`
}

// SyncDeltaRequest is the body of POST /sync/delta.
type SyncDeltaRequest struct {
	AccountID    string        `json:"accountId"`
	DeviceID     string        `json:"deviceId"`
	SinceVersion int64         `json:"sinceVersion"`
	Incoming     []EnvelopeDTO `json:"incoming"`
}

// SyncDeltaResponse is the result of one delta application.
type SyncDeltaResponse struct {
	ServerVersion int64         `json:"serverVersion"`
	Applied       []EnvelopeDTO `json:"applied"`
	Conflicts     []ConflictDTO `json:"conflicts"`
	Outbound      []EnvelopeDTO `json:"outbound"`
}

// ConflictResolutionRequest is the body of POST /sync/resolve-conflict.
type ConflictResolutionRequest struct {
	ConflictID    string `json:"conflictId"`
	EntityID      string `json:"entityId"`
	ChosenPayload string `json:"chosenPayload"`
	IsEncrypted   bool   `json:"isEncrypted"`
	AccountID     string `json:"accountId"`
	DeviceID      string `json:"deviceId"`
}

// ConflictResolutionResult is the response of a successful resolution.
type ConflictResolutionResult struct {
	EntityID      string    `json:"entityId"`
	ServerVersion int64     `json:"serverVersion"`
	ResolvedAt    time.Time `json:"resolvedAt"`
}

// ExportRequest is the body of POST /export.
type ExportRequest struct {
	AccountID string `json:"accountId"`
	DeviceID  string `json:"deviceId"`
	Email     string `json:"email,omitempty"`
}

// ExportJobDTO is the poll-facing view of an export job.
type ExportJobDTO struct {
	JobID       string     `json:"jobId"`
	AccountID   string     `json:"accountId"`
	DeviceID    string     `json:"deviceId"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DownloadURL *string    `json:"downloadUrl"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

func toEnvelopeDTO(e *models.Envelope) EnvelopeDTO {
	return EnvelopeDTO{
		ID:            e.ID,
		ServerVersion: e.ServerVersion,
		UpdatedAt:     e.UpdatedAt,
		DeletedAt:     e.DeletedAt,
		Payload:       e.Payload,
		IsEncrypted:   e.IsEncrypted,
		DeviceID:      e.OriginDeviceID,
	}
}

func toEnvelopeDTOs(items []*models.Envelope) []EnvelopeDTO {
	result := make([]EnvelopeDTO, 0, len(items))
	for _, e := range items {
		result = append(result, toEnvelopeDTO(e))
	}
	return result
}

func toConflictDTOs(items []*models.Conflict) []ConflictDTO {
	result := make([]ConflictDTO, 0, len(items))
	for _, c := range items {
		result = append(result, ConflictDTO{
			ConflictID:    c.ID,
			EntityID:      c.EntityID,
			ServerVersion: c.ServerVersion,
			DeviceVersion: c.DeviceVersion,
			ServerPayload: c.ServerPayload,
			DevicePayload: c.DevicePayload,
			IsEncrypted:   c.IsEncrypted,
			CreatedAt:     c.CreatedAt,
		})
	}
	return result
}

func fromEnvelopeDTO(accountID string, in EnvelopeDTO) *models.Envelope {
	return &models.Envelope{
		ID:             in.ID,
		AccountID:      accountID,
		ServerVersion:  in.ServerVersion,
		UpdatedAt:      in.UpdatedAt,
		DeletedAt:      in.DeletedAt,
		Payload:        in.Payload,
		IsEncrypted:    in.IsEncrypted,
		OriginDeviceID: in.DeviceID,
	}
}

func toSyncStatusDTO(s *services.SyncStatus) SyncStatusDTO {
	return SyncStatusDTO{
		DeviceID:            s.DeviceID,
		AccountID:           s.AccountID,
		LatestServerVersion: s.LatestServerVersion,
		LastSyncAt:          s.LastSyncAt,
	}
}

func toExportJobDTO(job *models.ExportJob) ExportJobDTO {
	return ExportJobDTO{
		JobID:       job.ID,
		AccountID:   job.AccountID,
		DeviceID:    job.DeviceID,
		Status:      string(job.Status),
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		DownloadURL: job.DownloadURL,
		ExpiresAt:   job.ExpiresAt,
	}
}
