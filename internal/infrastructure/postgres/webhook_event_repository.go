package postgres

import (
	"context"
	"fmt"

	"moneta/internal/domain/sync"
)

// WebhookEventRepository records processed webhook event ids so provider
// redeliveries cannot trigger duplicate syncs.
type WebhookEventRepository struct {
	db *DB
}

var _ sync.WebhookEventLog = (*WebhookEventRepository)(nil)

func NewWebhookEventRepository(db *DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// MarkProcessed inserts (provider_id, event_id); the unique constraint
// makes the insert a no-op on redelivery, and RowsAffected tells the two
// cases apart in a single round trip.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, providerID, eventID string) (bool, error) {
	query := `
		INSERT INTO webhook_events (provider_id, event_id)
		VALUES ($1, $2)
		ON CONFLICT (provider_id, event_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, providerID, eventID)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}
