// Package provider defines the capability contract every upstream bank
// aggregation service must implement, plus the registry that holds the
// compiled-in set of implementations.
package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LinkKind discriminates the two styles of link initiation.
type LinkKind string

const (
	// LinkKindWidgetToken is an opaque token handed to a provider-supplied
	// interactive widget (e.g. Plaid Link, Belvo widget).
	LinkKindWidgetToken LinkKind = "widget_token"

	// LinkKindRedirectAuth is an OAuth-style authorization URL the user is
	// redirected to (e.g. TrueLayer).
	LinkKindRedirectAuth LinkKind = "redirect_auth"
)

// LinkInitiation is the tagged union returned by CreateLinkInitiation.
// Callers branch on Kind, never on provider identity.
type LinkInitiation struct {
	Kind        LinkKind `json:"kind"`
	WidgetToken string   `json:"widgetToken,omitempty"`
	AuthURL     string   `json:"authUrl,omitempty"`
}

// LinkMetadata carries the institution details the UI layer collected
// during the link flow.
type LinkMetadata struct {
	InstitutionID   string `json:"institutionId"`
	InstitutionName string `json:"institutionName"`
	InstitutionLogo string `json:"institutionLogo"`
}

// ExchangeResult holds the durable credentials obtained from a one-time
// code exchange or a token refresh.
type ExchangeResult struct {
	AccessToken    string
	RefreshToken   string // empty for providers without refresh tokens
	ExternalItemID string // provider's own identifier for the linked item
	ExpiresAt      *time.Time
}

// RawAccount is a provider-native account before normalization.
type RawAccount struct {
	ProviderAccountID string
	Name              string
	Type              string
	Subtype           string
	Mask              string // last 4 digits, may be empty
	CurrentBalance    decimal.Decimal
	AvailableBalance  decimal.Decimal
	Currency          string
}

// BalanceSnapshot is a point-in-time balance for one account.
type BalanceSnapshot struct {
	ProviderAccountID string
	Current           decimal.Decimal
	Available         decimal.Decimal
	Currency          string
}

// RawTransaction is a provider-native transaction before normalization.
// Amount keeps the provider's sign convention; Direction, when non-nil,
// is an explicit "DEBIT"/"CREDIT" flag that overrides sign conventions.
type RawTransaction struct {
	ProviderTransactionID string // empty when the provider has no stable id
	ProviderAccountID     string
	Amount                decimal.Decimal
	Direction             *string
	Description           string
	Merchant              string
	Date                  time.Time
	Category              string
	Pending               bool
	Currency              string
}

// WebhookEvent is the decoded form of an asynchronous provider notification.
type WebhookEvent struct {
	EventID        string // provider event id when supplied, used for idempotency
	ExternalItemID string
	Kind           string
}

// Provider is the capability set implemented once per upstream data source.
// All remote calls respect the context for cancellation and timeouts.
type Provider interface {
	// ID is the stable registry key ("plaid", "truelayer", ...).
	ID() string
	Name() string
	Logo() string
	Regions() []string
	Features() []string

	// IsAvailable reports whether operator credentials are configured (or
	// demo mode is on). No side effects.
	IsAvailable() bool

	// StableTransactionIDs reports whether the provider's transaction ids
	// survive re-fetches. When false the normalizer falls back to a
	// content hash for deduplication.
	StableTransactionIDs() bool

	// CreateLinkInitiation starts a link flow. Must not mutate persistent
	// state; purely a remote call (or a locally built auth URL).
	CreateLinkInitiation(ctx context.Context, userID, redirectTarget string) (*LinkInitiation, error)

	// CompleteLink exchanges a one-time code or public token for durable
	// credentials. Returns ErrProviderExchange on an invalid/expired code.
	CompleteLink(ctx context.Context, userID, oneTimeCode string, metadata LinkMetadata) (*ExchangeResult, error)

	// CanRefresh reports whether the provider issues refresh tokens.
	CanRefresh() bool

	// Refresh exchanges a refresh token for a fresh access token. Providers
	// with CanRefresh()==false return ErrRefreshUnsupported.
	Refresh(ctx context.Context, refreshToken string) (*ExchangeResult, error)

	FetchAccounts(ctx context.Context, accessToken string) ([]RawAccount, error)
	FetchBalances(ctx context.Context, accessToken string) ([]BalanceSnapshot, error)

	// FetchTransactions returns the complete transaction set for one
	// account over the requested window, paginating internally.
	FetchTransactions(ctx context.Context, accessToken, providerAccountID string, start, end time.Time) ([]RawTransaction, error)

	// Revoke tells the provider to drop the credentials. Best-effort:
	// callers log failures and never block local disconnect on them.
	Revoke(ctx context.Context, accessToken string) error

	// DecodeWebhook parses a raw webhook payload. Pure and synchronous,
	// no network calls.
	DecodeWebhook(payload []byte) (*WebhookEvent, error)
}
