package sync

import (
	"context"
	"errors"
	"time"
)

// Trigger identifies what started a sync run.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerWebhook   Trigger = "webhook"
	TriggerScheduled Trigger = "scheduled"
)

// Outcome is the overall result of a sync run.
type Outcome string

const (
	// OutcomeSuccess: every account synced.
	OutcomeSuccess Outcome = "success"
	// OutcomePartial: some accounts synced, some failed. The connection
	// stays healthy; failed accounts keep their stale data.
	OutcomePartial Outcome = "partial"
	// OutcomeError: zero accounts synced.
	OutcomeError Outcome = "error"
)

// Orchestrator errors
var (
	// ErrRecentlySynced means a non-forced manual sync arrived inside the
	// throttle window. The caller may retry with force.
	ErrRecentlySynced = errors.New("connection synced recently")

	// ErrConnectionDisconnected means the target connection was
	// disconnected; its data is frozen.
	ErrConnectionDisconnected = errors.New("connection is disconnected")

	// ErrReauthRequired means the connection needs user re-authorization
	// before it can sync again.
	ErrReauthRequired = errors.New("connection requires re-authorization")
)

// Run is the append-only audit record of one sync attempt. Never mutated
// after completion; used for observability and backoff decisions.
type Run struct {
	ID                   string    `json:"id"`
	ConnectionID         string    `json:"connectionId"`
	Trigger              Trigger   `json:"trigger"`
	StartedAt            time.Time `json:"startedAt"`
	FinishedAt           time.Time `json:"finishedAt"`
	Outcome              Outcome   `json:"outcome"`
	AccountsSynced       int       `json:"accountsSynced"`
	AccountsFailed       int       `json:"accountsFailed"`
	TransactionsUpserted int       `json:"transactionsUpserted"`
	ErrorDetail          string    `json:"errorDetail,omitempty"`
}

// RunRepository persists sync run audit records.
type RunRepository interface {
	// Insert appends a completed run. Runs are never updated.
	Insert(ctx context.Context, run *Run) error

	// ListByConnectionID retrieves recent runs, newest first.
	ListByConnectionID(ctx context.Context, connectionID string, limit int) ([]*Run, error)
}

// WebhookEventLog records processed webhook event ids so redelivered
// notifications trigger at most one sync.
type WebhookEventLog interface {
	// MarkProcessed records (provider, eventID) and reports whether this
	// was the first time the event was seen.
	MarkProcessed(ctx context.Context, providerID, eventID string) (first bool, err error)
}
