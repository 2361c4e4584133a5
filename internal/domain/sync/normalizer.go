// Package sync contains the transaction normalizer and the orchestrator
// that executes fetch→normalize→upsert runs per connection.
package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/domain/provider"
	"moneta/internal/domain/transaction"
)

// SignConvention describes how a provider encodes transaction direction
// when it has no explicit debit/credit flag.
type SignConvention int

const (
	// NegativeIsExpense: outflows carry a negative amount (most open
	// banking APIs).
	NegativeIsExpense SignConvention = iota
	// PositiveIsExpense: outflows carry a positive amount (Plaid).
	PositiveIsExpense
)

// providerRules captures per-provider normalization behavior.
type providerRules struct {
	convention SignConvention
	stableIDs  bool
}

// Normalizer maps provider-native transactions into the canonical schema
// and computes the stable dedupe key. Pure and deterministic: the same raw
// input always yields the same output.
type Normalizer struct {
	rules map[string]providerRules
}

// NewNormalizer builds a normalizer with rules for the compiled-in
// providers. Unknown providers fall back to NegativeIsExpense with
// content-hash deduplication, the conservative choice.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		rules: map[string]providerRules{
			"plaid":     {convention: PositiveIsExpense, stableIDs: true},
			"truelayer": {convention: NegativeIsExpense, stableIDs: true},
			"belvo":     {convention: NegativeIsExpense, stableIDs: false},
			"yodlee":    {convention: NegativeIsExpense, stableIDs: true},
		},
	}
}

// Register adds or overrides rules for a provider. Used by tests and by
// wiring when a deployment adds providers.
func (n *Normalizer) Register(providerID string, convention SignConvention, stableIDs bool) {
	n.rules[providerID] = providerRules{convention: convention, stableIDs: stableIDs}
}

// Normalize converts one raw transaction into canonical form. The explicit
// direction flag wins when present; otherwise the provider's sign
// convention decides. Amounts come out positive with IsExpense set.
func (n *Normalizer) Normalize(providerID string, raw provider.RawTransaction) (transaction.UpsertParams, error) {
	if raw.ProviderAccountID == "" {
		return transaction.UpsertParams{}, fmt.Errorf("transaction %q has no account id", raw.ProviderTransactionID)
	}
	if raw.Date.IsZero() {
		return transaction.UpsertParams{}, fmt.Errorf("transaction %q has no date", raw.ProviderTransactionID)
	}

	rules := n.rules[providerID]

	isExpense := false
	switch {
	case raw.Direction != nil:
		isExpense = strings.EqualFold(*raw.Direction, "DEBIT")
	case rules.convention == PositiveIsExpense:
		isExpense = raw.Amount.Sign() > 0
	default:
		isExpense = raw.Amount.Sign() < 0
	}
	amount := raw.Amount.Abs()

	description := strings.TrimSpace(raw.Description)
	merchant := strings.TrimSpace(raw.Merchant)
	if merchant == "" {
		merchant = description
	}
	category := raw.Category
	if category == "" {
		category = "other"
	}

	params := transaction.UpsertParams{
		DedupeKey:             n.dedupeKey(providerID, rules, raw, amount, isExpense),
		ProviderTransactionID: raw.ProviderTransactionID,
		Amount:                amount,
		IsExpense:             isExpense,
		Date:                  raw.Date,
		Description:           description,
		Merchant:              merchant,
		Category:              category,
		Pending:               raw.Pending,
		Currency:              raw.Currency,
	}
	return params, nil
}

// dedupeKey prefers the provider's stable transaction id, scoped by
// provider so ids from different upstreams can never collide. Without a
// stable id it hashes the logical identity of the transaction; pending
// status is deliberately excluded so a pending→posted settle updates the
// existing row instead of duplicating it.
func (n *Normalizer) dedupeKey(providerID string, rules providerRules, raw provider.RawTransaction, amount decimal.Decimal, isExpense bool) string {
	if rules.stableIDs && raw.ProviderTransactionID != "" {
		return providerID + ":" + raw.ProviderTransactionID
	}

	payload := strings.Join([]string{
		raw.ProviderAccountID,
		raw.Date.UTC().Format(time.DateOnly),
		amount.String(),
		fmt.Sprintf("%t", isExpense),
		normalizeDescription(raw.Description),
	}, "|")

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// normalizeDescription lowercases and collapses whitespace so cosmetic
// re-renderings of the same statement line hash identically.
func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
