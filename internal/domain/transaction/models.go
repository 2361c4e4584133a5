// Package transaction holds the canonical transaction entity produced by the
// normalizer. Amounts are always positive decimals paired with an explicit
// expense flag, regardless of the upstream provider's sign convention.
package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// NormalizedTransaction is one upstream transaction in canonical form.
// DedupeKey is unique per user: re-ingesting the same upstream transaction
// updates the existing row, never duplicates it.
type NormalizedTransaction struct {
	ID                    string          `json:"id"`
	UserID                string          `json:"userId"`
	ConnectionID          string          `json:"connectionId"`
	AccountID             string          `json:"accountId"`
	DedupeKey             string          `json:"-"`
	ProviderTransactionID string          `json:"providerTransactionId,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	IsExpense             bool            `json:"isExpense"`
	Date                  time.Time       `json:"date"`
	Description           string          `json:"description"`
	Merchant              string          `json:"merchant,omitempty"`
	Category              string          `json:"category"`
	Pending               bool            `json:"pending"`
	Currency              string          `json:"currency"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// UpsertParams contains parameters for inserting or updating a transaction
// during a sync, keyed by (user_id, dedupe_key).
type UpsertParams struct {
	UserID                string
	ConnectionID          string
	AccountID             string
	DedupeKey             string
	ProviderTransactionID string
	Amount                decimal.Decimal
	IsExpense             bool
	Date                  time.Time
	Description           string
	Merchant              string
	Category              string
	Pending               bool
	Currency              string
}
