// Package account holds the ExternalAccount domain entity: the local,
// normalized copy of one upstream account under a bank connection.
package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrForbidden       = errors.New("access forbidden")
)

// ExternalAccount is a snapshot of one provider account. Balance fields are
// replaced wholesale on every successful sync; they are a snapshot, not a
// history.
type ExternalAccount struct {
	ID                string          `json:"id"`
	ConnectionID      string          `json:"connectionId"`
	UserID            string          `json:"userId"`
	ProviderAccountID string          `json:"providerAccountId"`
	Name              string          `json:"name"`
	AccountType       string          `json:"accountType"`
	Subtype           string          `json:"subtype,omitempty"`
	Mask              string          `json:"mask,omitempty"`
	CurrentBalance    decimal.Decimal `json:"currentBalance"`
	AvailableBalance  decimal.Decimal `json:"availableBalance"`
	Currency          string          `json:"currency"`
	LastSyncedAt      *time.Time      `json:"lastSyncedAt,omitempty"`
	LastError         *string         `json:"lastError,omitempty"`
	Hidden            bool            `json:"hidden"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// UpsertParams contains parameters for creating or refreshing an account
// during a sync. The natural key is (ConnectionID, ProviderAccountID).
type UpsertParams struct {
	ConnectionID      string
	UserID            string
	ProviderAccountID string
	Name              string
	AccountType       string
	Subtype           string
	Mask              string
	CurrentBalance    decimal.Decimal
	AvailableBalance  decimal.Decimal
	Currency          string
	SyncedAt          time.Time
}

// Validate validates the upsert parameters.
func (p UpsertParams) Validate() error {
	if p.ConnectionID == "" {
		return errors.New("connection ID is required")
	}
	if p.UserID == "" {
		return errors.New("user ID is required")
	}
	if p.ProviderAccountID == "" {
		return errors.New("provider account ID is required")
	}
	if p.Name == "" {
		return errors.New("account name is required")
	}
	if len(p.Currency) != 3 {
		return errors.New("valid ISO 4217 currency is required")
	}
	return nil
}
