package models

import "time"

// Device is a client installation scoped to an account. Devices are
// created on first contact and never deleted, only soft-marked via
// DisabledAt.
type Device struct {
	ID         string
	AccountID  string
	CreatedAt  time.Time
	LastSyncAt *time.Time
	DisabledAt *time.Time
}
