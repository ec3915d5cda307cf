package models

import "time"

// Conflict records a version disagreement detected during delta apply:
// the incoming envelope's declared version was strictly behind the stored
// one. Both sides' payloads are captured as they were at detection time;
// resolution writes a new envelope version and never mutates them.
// A conflict is terminal once ResolvedAt is set.
type Conflict struct {
	ID             string
	EntityID       string
	AccountID      string
	OriginDeviceID string
	DeviceVersion  int64
	ServerVersion  int64
	ServerPayload  string
	DevicePayload  string
	IsEncrypted    bool
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}
