// Package connection owns the per-connection state machine: the lifecycle of
// one user's authorized link to one institution through one provider.
package connection

import (
	"errors"
	"time"
)

// Status is the connection lifecycle state.
type Status string

const (
	// StatusLinked: token exchange succeeded, no sync has completed yet.
	StatusLinked Status = "linked"
	// StatusSyncing: a sync run is in flight.
	StatusSyncing Status = "syncing"
	// StatusSynced: the last sync run brought over at least one account.
	StatusSynced Status = "synced"
	// StatusError: the last sync run synced zero accounts.
	StatusError Status = "error"
	// StatusReauthRequired: credentials expired beyond repair; the user
	// must re-link. Terminal for this row — re-linking creates a new
	// Connection so SyncRun history stays attributable.
	StatusReauthRequired Status = "reauth_required"
	// StatusDisconnected: user-initiated disconnect. Terminal.
	StatusDisconnected Status = "disconnected"
)

// syncable lists the states a sync may start from.
var syncable = map[Status]bool{
	StatusLinked: true,
	StatusSynced: true,
	StatusError:  true,
}

// CanStartSync reports whether a sync may begin from this status.
func (s Status) CanStartSync() bool { return syncable[s] }

// Domain errors
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrForbidden          = errors.New("access forbidden")
	ErrNotSyncable        = errors.New("connection is not in a syncable state")
)

// Connection identifies one user's link to one provider at one institution.
// Rows are created on successful token exchange only; abandoned link flows
// never persist anything.
type Connection struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	ProviderID      string     `json:"providerId"`
	ExternalItemID  string     `json:"-"` // provider's item/credentials id, used for webhook resolution
	InstitutionID   string     `json:"institutionId,omitempty"`
	InstitutionName string     `json:"institutionName"`
	InstitutionLogo string     `json:"institutionLogo,omitempty"`
	Status          Status     `json:"status"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	LastError       *string    `json:"lastError,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	DisconnectedAt  *time.Time `json:"disconnectedAt,omitempty"`
}

// CreateParams contains parameters for persisting a freshly linked
// connection.
type CreateParams struct {
	UserID          string
	ProviderID      string
	ExternalItemID  string
	InstitutionID   string
	InstitutionName string
	InstitutionLogo string
}

// Validate validates the create parameters.
func (p CreateParams) Validate() error {
	if p.UserID == "" {
		return errors.New("user ID is required")
	}
	if p.ProviderID == "" {
		return errors.New("provider ID is required")
	}
	if p.ExternalItemID == "" {
		return errors.New("external item ID is required")
	}
	return nil
}
