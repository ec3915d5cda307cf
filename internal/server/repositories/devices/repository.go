package devices

import (
	"context"
	"time"

	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
)

// Repository manages device rows and their sync state. Devices are
// created implicitly on first contact and never deleted.
type Repository interface {
	// Get returns the device row, or common.ErrorNotFound.
	Get(ctx context.Context, accountID, deviceID string) (*models.Device, error)

	// TouchSyncState upserts the device row and stamps last_sync_at.
	TouchSyncState(ctx context.Context, accountID, deviceID string, syncedAt time.Time) error

	// Disable soft-marks the device. Disabled devices keep their history.
	Disable(ctx context.Context, accountID, deviceID string, disabledAt time.Time) error
}
