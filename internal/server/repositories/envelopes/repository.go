package envelopes

import (
	"context"

	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
)

// Repository is the storage contract for one envelope store (plain or
// encrypted). The sync engine holds one instance per store and keeps the
// one-envelope-per-entity invariant by pairing every Upsert into one store
// with a Delete from the other.
type Repository interface {
	// Get returns the stored envelope for (accountID, entityID), or
	// common.ErrorNotFound.
	Get(ctx context.Context, accountID, entityID string) (*models.Envelope, error)

	// Upsert writes the envelope, replacing any previous version of the
	// same entity in this store.
	Upsert(ctx context.Context, env *models.Envelope) error

	// Delete removes the entity's envelope from this store if present.
	Delete(ctx context.Context, accountID, entityID string) error

	// SelectUpdated returns envelopes with server_version > minVersion
	// whose origin device differs from excludeDeviceID, ordered by
	// ascending version.
	SelectUpdated(ctx context.Context, accountID string, minVersion int64, excludeDeviceID string) ([]*models.Envelope, error)

	// SelectAll returns every envelope of the account in this store,
	// ordered by ascending version.
	SelectAll(ctx context.Context, accountID string) ([]*models.Envelope, error)
}
