package conflicts

import (
	"context"
	"time"

	"github.com/wayfarerapp/wayfarer-server/internal/server/models"
)

// Repository persists detected version conflicts pending resolution.
type Repository interface {
	// Create inserts a new conflict row.
	Create(ctx context.Context, conflict *models.Conflict) error

	// Get returns the conflict by id, or common.ErrorNotFound.
	Get(ctx context.Context, conflictID string) (*models.Conflict, error)

	// MarkResolved sets resolved_at on a pending conflict. Resolving an
	// already-resolved conflict returns common.ErrConflictResolved.
	MarkResolved(ctx context.Context, conflictID string, resolvedAt time.Time) error

	// SelectPending returns the account's unresolved conflicts, oldest
	// first.
	SelectPending(ctx context.Context, accountID string) ([]*models.Conflict, error)
}
