// Package common defines shared constants and sentinel errors used across
// the Wayfarer server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors.
	ErrorValidation = errors.New("validation error")

	// Sync-specific errors.
	ErrConflictResolved = errors.New("conflict already resolved")

	// Export-specific errors.
	ErrJobTerminal = errors.New("export job in terminal state")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
