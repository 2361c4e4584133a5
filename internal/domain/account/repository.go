package account

import "context"

// Repository defines data access for external accounts. The interface lives
// in the domain layer and is implemented in the infrastructure layer.
type Repository interface {
	// Upsert creates or refreshes an account keyed by
	// (connection_id, provider_account_id) and returns the stored row.
	Upsert(ctx context.Context, params UpsertParams) (*ExternalAccount, error)

	// GetByID retrieves an account by its local ID.
	GetByID(ctx context.Context, id string) (*ExternalAccount, error)

	// ListByConnectionID retrieves all accounts for one connection.
	ListByConnectionID(ctx context.Context, connectionID string) ([]*ExternalAccount, error)

	// ListByUserID retrieves all non-hidden accounts across a user's
	// connections.
	ListByUserID(ctx context.Context, userID string) ([]*ExternalAccount, error)

	// SetLastError records (or clears, with nil) a per-account fetch error
	// without touching balance data.
	SetLastError(ctx context.Context, id string, message *string) error

	// Hide marks an account hidden so it is excluded from listings while
	// its connection stays linked.
	Hide(ctx context.Context, id string) error
}
