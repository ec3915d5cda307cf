package accounts

import "context"

// Repository manages account rows and the per-account version counter.
type Repository interface {
	// Ensure creates the account row on first contact. Existing accounts
	// are left untouched.
	Ensure(ctx context.Context, accountID string) error

	// NextVersion atomically increments the account's counter and returns
	// the new value. Run it on a transactional DBTX: the row lock taken by
	// the update is what serializes version assignment across concurrent
	// deltas for the same account.
	NextVersion(ctx context.Context, accountID string) (int64, error)

	// CurrentVersion reads the counter without advancing it.
	CurrentVersion(ctx context.Context, accountID string) (int64, error)
}
