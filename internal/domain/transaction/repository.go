package transaction

import (
	"context"
	"time"
)

// Repository defines data access for normalized transactions.
type Repository interface {
	// Upsert inserts or updates a transaction keyed by
	// (user_id, dedupe_key). Returns true when a new row was created.
	Upsert(ctx context.Context, params UpsertParams) (created bool, err error)

	// ListByAccountID retrieves transactions for one account, newest first.
	ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*NormalizedTransaction, error)

	// ListByUserID retrieves a user's transactions in a date window. This
	// is the feed consumed by downstream collaborators (forecasting,
	// categorization).
	ListByUserID(ctx context.Context, userID string, from, to time.Time) ([]*NormalizedTransaction, error)

	// CountByUserID returns the number of stored transactions for a user.
	CountByUserID(ctx context.Context, userID string) (int, error)
}
