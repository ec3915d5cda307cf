// Package services implements the synchronization engine and the export
// job pipeline on top of the repository layer.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarerapp/wayfarer-server/internal/common"
	"github.com/wayfarerapp/wayfarer-server/internal/dbx"
	"github.com/wayfarerapp/wayfarer-server/internal/logging"
	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/envelopes"
	"github.com/wayfarerapp/wayfarer-server/internal/server/repositories/repomanager"
)

// SyncStatus is the result of a status query: the account's current
// counter value and the device's last successful sync, if any.
type SyncStatus struct {
	DeviceID            string
	AccountID           string
	LatestServerVersion int64
	LastSyncAt          *time.Time
}

// DeltaResult reports the outcome of one delta application: the account's
// counter after the call, the accepted envelopes with their assigned
// versions, the detected conflicts, and the outbound diff of other
// devices' changes.
type DeltaResult struct {
	ServerVersion int64
	Applied       []*models.Envelope
	Conflicts     []*models.Conflict
	Outbound      []*models.Envelope
}

// Resolution reports a resolved conflict: the new authoritative version
// written for the entity.
type Resolution struct {
	EntityID      string
	ServerVersion int64
	ResolvedAt    time.Time
}

// SyncService orchestrates delta ingestion, outbound diffing and conflict
// resolution. Version comparison is the only conflict signal; payloads
// are never inspected.
type SyncService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	logger logging.Logger

	now func() time.Time
}

// NewSyncService constructs a SyncService.
func NewSyncService(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger) *SyncService {
	return &SyncService{
		db:     db,
		rm:     rm,
		logger: logger.With("module", "sync"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetStatus returns the account's current version and the device's last
// sync time. Pure read, no side effects.
func (s *SyncService) GetStatus(ctx context.Context, accountID, deviceID string) (*SyncStatus, error) {
	if accountID == "" || deviceID == "" {
		return nil, common.ErrorValidation
	}

	version, err := s.rm.Accounts(s.db).CurrentVersion(ctx, accountID)
	if err != nil {
		return nil, err
	}

	status := &SyncStatus{
		DeviceID:            deviceID,
		AccountID:           accountID,
		LatestServerVersion: version,
	}

	device, err := s.rm.Devices(s.db).Get(ctx, accountID, deviceID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		// Device has never synced; LastSyncAt stays nil.
		return status, nil
	}

	status.LastSyncAt = device.LastSyncAt
	return status, nil
}

// ApplyDelta processes a device's pending edits and computes its outbound
// diff, all inside one transaction: either every accepted envelope in the
// batch commits, or none of them do.
//
// Per incoming envelope: an entity with no stored envelope, or whose
// stored version is <= the declared version, is accepted and stamped with
// the next counter value. A stored version strictly greater than the
// declared one produces a conflict record and leaves the stored envelope
// untouched. Equal versions overwrite without a conflict, which lets a
// client idempotently re-send its own last accepted write; two devices
// racing with the same stale version are not both protected.
func (s *SyncService) ApplyDelta(ctx context.Context, accountID, deviceID string, sinceVersion int64, incoming []*models.Envelope) (*DeltaResult, error) {
	if accountID == "" || deviceID == "" || sinceVersion < 0 {
		return nil, common.ErrorValidation
	}
	for _, in := range incoming {
		if in == nil || in.ID == "" || in.ServerVersion < 0 {
			return nil, common.ErrorValidation
		}
	}

	result := &DeltaResult{}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accountRepo := s.rm.Accounts(tx)
		conflictRepo := s.rm.Conflicts(tx)
		deviceRepo := s.rm.Devices(tx)
		plain := s.rm.Envelopes(tx, models.StorePlain)
		encrypted := s.rm.Envelopes(tx, models.StoreEncrypted)

		if err := accountRepo.Ensure(ctx, accountID); err != nil {
			return err
		}

		now := s.now()

		for _, in := range incoming {
			target, other := plain, encrypted
			if in.IsEncrypted {
				target, other = encrypted, plain
			}

			current, err := s.findCurrent(ctx, in.ID, accountID, target, other)
			if err != nil {
				return err
			}

			if current != nil && current.ServerVersion > in.ServerVersion {
				conflict := &models.Conflict{
					ID:             uuid.New().String(),
					EntityID:       in.ID,
					AccountID:      accountID,
					OriginDeviceID: deviceID,
					DeviceVersion:  in.ServerVersion,
					ServerVersion:  current.ServerVersion,
					ServerPayload:  current.Payload,
					DevicePayload:  in.Payload,
					IsEncrypted:    in.IsEncrypted,
					CreatedAt:      now,
				}
				if err := conflictRepo.Create(ctx, conflict); err != nil {
					return err
				}
				result.Conflicts = append(result.Conflicts, conflict)
				continue
			}

			version, err := accountRepo.NextVersion(ctx, accountID)
			if err != nil {
				return err
			}

			updatedAt := in.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = now
			}

			env := &models.Envelope{
				ID:             in.ID,
				AccountID:      accountID,
				ServerVersion:  version,
				UpdatedAt:      updatedAt,
				DeletedAt:      in.DeletedAt,
				Payload:        in.Payload,
				IsEncrypted:    in.IsEncrypted,
				OriginDeviceID: deviceID,
			}

			if err := target.Upsert(ctx, env); err != nil {
				return err
			}
			// The entity may have changed encryption state since its last
			// write; drop any stale copy so it lives in exactly one store.
			if err := other.Delete(ctx, accountID, in.ID); err != nil {
				return err
			}

			result.Applied = append(result.Applied, env)
		}

		outbound, err := s.outbound(ctx, accountID, deviceID, sinceVersion, plain, encrypted)
		if err != nil {
			return err
		}
		result.Outbound = outbound

		if err := deviceRepo.TouchSyncState(ctx, accountID, deviceID, now); err != nil {
			return err
		}

		version, err := accountRepo.CurrentVersion(ctx, accountID)
		if err != nil {
			return err
		}
		result.ServerVersion = version

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply delta: %w", err)
	}

	s.logger.Debug(ctx, "delta applied",
		"account_id", accountID, "device_id", deviceID,
		"applied", len(result.Applied), "conflicts", len(result.Conflicts),
		"outbound", len(result.Outbound), "server_version", result.ServerVersion)

	return result, nil
}

// ResolveConflict writes the chosen payload as a fresh envelope version
// and closes the conflict. The write participates in the normal counter
// sequence, so other devices pick it up as regular outbound.
func (s *SyncService) ResolveConflict(ctx context.Context, accountID, deviceID, conflictID, entityID, chosenPayload string, isEncrypted bool) (*Resolution, error) {
	if accountID == "" || deviceID == "" || conflictID == "" || entityID == "" {
		return nil, common.ErrorValidation
	}

	var resolution *Resolution

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		conflictRepo := s.rm.Conflicts(tx)

		conflict, err := conflictRepo.Get(ctx, conflictID)
		if err != nil {
			return err
		}
		// Foreign-account conflicts look exactly like missing ones.
		if conflict.AccountID != accountID {
			return common.ErrorNotFound
		}
		if conflict.EntityID != entityID {
			return common.ErrorValidation
		}
		if conflict.ResolvedAt != nil {
			return common.ErrConflictResolved
		}

		version, err := s.rm.Accounts(tx).NextVersion(ctx, accountID)
		if err != nil {
			return err
		}

		now := s.now()

		target := s.rm.Envelopes(tx, models.StoreFor(isEncrypted))
		other := s.rm.Envelopes(tx, models.StoreFor(isEncrypted).Other())

		env := &models.Envelope{
			ID:             entityID,
			AccountID:      accountID,
			ServerVersion:  version,
			UpdatedAt:      now,
			Payload:        chosenPayload,
			IsEncrypted:    isEncrypted,
			OriginDeviceID: deviceID,
		}
		if err := target.Upsert(ctx, env); err != nil {
			return err
		}
		if err := other.Delete(ctx, accountID, entityID); err != nil {
			return err
		}

		if err := conflictRepo.MarkResolved(ctx, conflictID, now); err != nil {
			return err
		}
		if err := s.rm.Devices(tx).TouchSyncState(ctx, accountID, deviceID, now); err != nil {
			return err
		}

		resolution = &Resolution{EntityID: entityID, ServerVersion: version, ResolvedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "conflict resolved",
		"account_id", accountID, "conflict_id", conflictID,
		"entity_id", entityID, "server_version", resolution.ServerVersion)

	return resolution, nil
}

// findCurrent looks the entity up in its target store first, then the
// other store; an entity lives in at most one of the two.
func (s *SyncService) findCurrent(ctx context.Context, entityID, accountID string, target, other envelopes.Repository) (*models.Envelope, error) {
	current, err := target.Get(ctx, accountID, entityID)
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	current, err = other.Get(ctx, accountID, entityID)
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}
	return nil, nil
}

// outbound merges both stores' per-store version-ordered results into one
// ascending sequence. Versions are globally unique per account, so a
// plain two-way merge suffices.
func (s *SyncService) outbound(ctx context.Context, accountID, deviceID string, sinceVersion int64, plain, encrypted envelopes.Repository) ([]*models.Envelope, error) {
	p, err := plain.SelectUpdated(ctx, accountID, sinceVersion, deviceID)
	if err != nil {
		return nil, err
	}
	e, err := encrypted.SelectUpdated(ctx, accountID, sinceVersion, deviceID)
	if err != nil {
		return nil, err
	}

	merged := make([]*models.Envelope, 0, len(p)+len(e))
	for len(p) > 0 && len(e) > 0 {
		if p[0].ServerVersion <= e[0].ServerVersion {
			merged = append(merged, p[0])
			p = p[1:]
		} else {
			merged = append(merged, e[0])
			e = e[1:]
		}
	}
	merged = append(merged, p...)
	merged = append(merged, e...)
	return merged, nil
}
