package connection

import (
	"context"
	"time"
)

// Repository defines data access for connections.
type Repository interface {
	// Create persists a freshly linked connection with status linked.
	Create(ctx context.Context, params CreateParams) (*Connection, error)

	// GetByID retrieves a connection. Returns ErrConnectionNotFound when
	// absent.
	GetByID(ctx context.Context, id string) (*Connection, error)

	// GetByExternalItemID resolves a webhook's item id to a connection.
	GetByExternalItemID(ctx context.Context, providerID, externalItemID string) (*Connection, error)

	// ListByUserID retrieves a user's connections, newest first,
	// excluding disconnected ones.
	ListByUserID(ctx context.Context, userID string) ([]*Connection, error)

	// ListSyncable retrieves every connection eligible for a scheduled
	// sync (linked, synced or error status).
	ListSyncable(ctx context.Context) ([]*Connection, error)

	// UpdateStatus transitions a connection and records/clears lastError.
	UpdateStatus(ctx context.Context, id string, status Status, lastError *string) error

	// MarkSynced sets status synced and stamps lastSyncedAt.
	MarkSynced(ctx context.Context, id string, syncedAt time.Time) error

	// Disconnect soft-deletes: status disconnected, stamped, terminal.
	Disconnect(ctx context.Context, id string, at time.Time) error
}
