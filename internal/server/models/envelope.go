// Package models defines server-side data models persisted in the database.
package models

import "time"

// Store is the closed set of envelope stores. An entity lives in exactly
// one of the two at any time.
type Store int

const (
	// StorePlain holds envelopes whose payload the client sent as opaque
	// cleartext.
	StorePlain Store = iota
	// StoreEncrypted holds end-to-end-encrypted envelopes.
	StoreEncrypted
)

// StoreFor maps an envelope's encryption flag to its target store.
func StoreFor(encrypted bool) Store {
	if encrypted {
		return StoreEncrypted
	}
	return StorePlain
}

// Other returns the opposite store. Accepting a write removes any stale
// copy of the entity from the other store so the one-envelope invariant
// holds across encryption-state changes.
func (s Store) Other() Store {
	if s == StorePlain {
		return StoreEncrypted
	}
	return StorePlain
}

func (s Store) String() string {
	if s == StoreEncrypted {
		return "encrypted"
	}
	return "plain"
}

// Envelope is the unit of synchronization: one entity's opaque payload
// wrapped with the version and timestamps the sync engine compares.
// A nil DeletedAt means the entity is live; a set DeletedAt is a tombstone
// propagated through sync instead of a physical row removal.
type Envelope struct {
	ID            string
	AccountID     string
	ServerVersion int64
	UpdatedAt     time.Time
	DeletedAt     *time.Time
	Payload       string
	IsEncrypted   bool
	// OriginDeviceID tags the device whose write produced this version,
	// so outbound diffs can exclude the caller's own changes.
	OriginDeviceID string
}
