package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/domain/provider"
)

const (
	plaidSandboxURL    = "https://sandbox.plaid.com"
	plaidProductionURL = "https://production.plaid.com"
	plaidPageSize      = 500
)

// PlaidConfig holds operator credentials for the Plaid API.
type PlaidConfig struct {
	ClientID    string
	Secret      string
	Environment string // "sandbox" or "production"
	WebhookURL  string
	DemoMode    bool
}

// PlaidClient implements provider.Provider against the Plaid API. Plaid
// uses a widget link flow (Plaid Link), does not issue refresh tokens, and
// encodes expenses as positive amounts.
type PlaidClient struct {
	api *apiClient
	cfg PlaidConfig
}

var _ provider.Provider = (*PlaidClient)(nil)

// NewPlaidClient creates a Plaid provider client.
func NewPlaidClient(cfg PlaidConfig) *PlaidClient {
	baseURL := plaidSandboxURL
	if cfg.Environment == "production" {
		baseURL = plaidProductionURL
	}
	return &PlaidClient{
		api: newAPIClient(baseURL, 10),
		cfg: cfg,
	}
}

func (c *PlaidClient) ID() string   { return "plaid" }
func (c *PlaidClient) Name() string { return "Plaid" }
func (c *PlaidClient) Logo() string {
	return "https://cdn.moneta.app/providers/plaid.svg"
}
func (c *PlaidClient) Regions() []string  { return []string{"US", "CA"} }
func (c *PlaidClient) Features() []string { return []string{"transactions", "balances", "webhooks"} }

func (c *PlaidClient) IsAvailable() bool {
	return c.cfg.DemoMode || (c.cfg.ClientID != "" && c.cfg.Secret != "")
}

func (c *PlaidClient) StableTransactionIDs() bool { return true }
func (c *PlaidClient) CanRefresh() bool           { return false }

// auth injects the operator credentials into a request body. Plaid carries
// credentials in the JSON body, not in headers.
func (c *PlaidClient) auth(body map[string]any) map[string]any {
	body["client_id"] = c.cfg.ClientID
	body["secret"] = c.cfg.Secret
	return body
}

type plaidLinkTokenResponse struct {
	LinkToken string `json:"link_token"`
}

// CreateLinkInitiation requests a short-lived link_token for the Plaid Link
// widget.
func (c *PlaidClient) CreateLinkInitiation(ctx context.Context, userID, redirectTarget string) (*provider.LinkInitiation, error) {
	if c.cfg.DemoMode {
		return demoLinkInitiation(provider.LinkKindWidgetToken, c.ID()), nil
	}

	body := c.auth(map[string]any{
		"client_name":   "Moneta",
		"language":      "en",
		"country_codes": []string{"US", "CA"},
		"user":          map[string]string{"client_user_id": userID},
		"products":      []string{"transactions"},
	})
	if c.cfg.WebhookURL != "" {
		body["webhook"] = c.cfg.WebhookURL
	}
	if redirectTarget != "" {
		body["redirect_uri"] = redirectTarget
	}

	var resp plaidLinkTokenResponse
	if err := c.api.doJSON(ctx, "POST", "/link/token/create", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("failed to create Plaid link token: %w", err)
	}
	return &provider.LinkInitiation{Kind: provider.LinkKindWidgetToken, WidgetToken: resp.LinkToken}, nil
}

type plaidExchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

// CompleteLink exchanges the public_token handed back by Plaid Link for a
// durable access token. Plaid access tokens do not expire.
func (c *PlaidClient) CompleteLink(ctx context.Context, userID, oneTimeCode string, metadata provider.LinkMetadata) (*provider.ExchangeResult, error) {
	if c.cfg.DemoMode {
		return demoExchange(c.ID(), userID), nil
	}

	body := c.auth(map[string]any{"public_token": oneTimeCode})
	var resp plaidExchangeResponse
	if err := c.api.doJSON(ctx, "POST", "/item/public_token/exchange", nil, body, &resp); err != nil {
		if isExchangeRejection(err) {
			return nil, fmt.Errorf("%w: %v", provider.ErrProviderExchange, err)
		}
		return nil, fmt.Errorf("failed to exchange Plaid public token: %w", err)
	}
	return &provider.ExchangeResult{
		AccessToken:    resp.AccessToken,
		ExternalItemID: resp.ItemID,
	}, nil
}

func (c *PlaidClient) Refresh(ctx context.Context, refreshToken string) (*provider.ExchangeResult, error) {
	return nil, provider.ErrRefreshUnsupported
}

type plaidAccount struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	Mask      string `json:"mask"`
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	Balances  struct {
		Current        *float64 `json:"current"`
		Available      *float64 `json:"available"`
		ISOCurrency    string   `json:"iso_currency_code"`
		UnofficialCode string   `json:"unofficial_currency_code"`
	} `json:"balances"`
}

func (a plaidAccount) currency() string {
	if a.Balances.ISOCurrency != "" {
		return a.Balances.ISOCurrency
	}
	return a.Balances.UnofficialCode
}

type plaidAccountsResponse struct {
	Accounts []plaidAccount `json:"accounts"`
}

func (c *PlaidClient) FetchAccounts(ctx context.Context, accessToken string) ([]provider.RawAccount, error) {
	if c.cfg.DemoMode {
		return demoAccounts("USD"), nil
	}

	body := c.auth(map[string]any{"access_token": accessToken})
	var resp plaidAccountsResponse
	if err := c.api.doJSON(ctx, "POST", "/accounts/get", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch Plaid accounts: %w", err)
	}

	accounts := make([]provider.RawAccount, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		accounts = append(accounts, provider.RawAccount{
			ProviderAccountID: a.AccountID,
			Name:              a.Name,
			Type:              a.Type,
			Subtype:           a.Subtype,
			Mask:              a.Mask,
			CurrentBalance:    floatAmount(a.Balances.Current),
			AvailableBalance:  floatAmount(a.Balances.Available),
			Currency:          a.currency(),
		})
	}
	return accounts, nil
}

func (c *PlaidClient) FetchBalances(ctx context.Context, accessToken string) ([]provider.BalanceSnapshot, error) {
	if c.cfg.DemoMode {
		snaps := make([]provider.BalanceSnapshot, 0, 2)
		for _, a := range demoAccounts("USD") {
			snaps = append(snaps, provider.BalanceSnapshot{
				ProviderAccountID: a.ProviderAccountID,
				Current:           a.CurrentBalance,
				Available:         a.AvailableBalance,
				Currency:          a.Currency,
			})
		}
		return snaps, nil
	}

	body := c.auth(map[string]any{"access_token": accessToken})
	var resp plaidAccountsResponse
	if err := c.api.doJSON(ctx, "POST", "/accounts/balance/get", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch Plaid balances: %w", err)
	}

	snaps := make([]provider.BalanceSnapshot, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		snaps = append(snaps, provider.BalanceSnapshot{
			ProviderAccountID: a.AccountID,
			Current:           floatAmount(a.Balances.Current),
			Available:         floatAmount(a.Balances.Available),
			Currency:          a.currency(),
		})
	}
	return snaps, nil
}

type plaidTransaction struct {
	TransactionID string   `json:"transaction_id"`
	AccountID     string   `json:"account_id"`
	Amount        float64  `json:"amount"`
	Date          string   `json:"date"`
	Name          string   `json:"name"`
	MerchantName  string   `json:"merchant_name"`
	Category      []string `json:"category"`
	Pending       bool     `json:"pending"`
	ISOCurrency   string   `json:"iso_currency_code"`
}

type plaidTransactionsResponse struct {
	Transactions      []plaidTransaction `json:"transactions"`
	TotalTransactions int                `json:"total_transactions"`
}

// FetchTransactions pages through /transactions/get for one account. Plaid
// amounts are positive for outflows.
func (c *PlaidClient) FetchTransactions(ctx context.Context, accessToken, providerAccountID string, start, end time.Time) ([]provider.RawTransaction, error) {
	if c.cfg.DemoMode {
		return demoTransactions(providerAccountID, "USD", start, end, true), nil
	}

	var all []provider.RawTransaction
	offset := 0
	for {
		body := c.auth(map[string]any{
			"access_token": accessToken,
			"start_date":   start.Format(time.DateOnly),
			"end_date":     end.Format(time.DateOnly),
			"options": map[string]any{
				"account_ids": []string{providerAccountID},
				"count":       plaidPageSize,
				"offset":      offset,
			},
		})

		var resp plaidTransactionsResponse
		if err := c.api.doJSON(ctx, "POST", "/transactions/get", nil, body, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch Plaid transactions: %w", err)
		}

		for _, t := range resp.Transactions {
			date, err := time.Parse(time.DateOnly, t.Date)
			if err != nil {
				return nil, fmt.Errorf("failed to parse transaction date '%s': %w", t.Date, err)
			}
			category := ""
			if len(t.Category) > 0 {
				category = t.Category[len(t.Category)-1]
			}
			all = append(all, provider.RawTransaction{
				ProviderTransactionID: t.TransactionID,
				ProviderAccountID:     t.AccountID,
				Amount:                decimal.NewFromFloat(t.Amount),
				Description:           t.Name,
				Merchant:              t.MerchantName,
				Date:                  date,
				Category:              category,
				Pending:               t.Pending,
				Currency:              t.ISOCurrency,
			})
		}

		offset += len(resp.Transactions)
		if offset >= resp.TotalTransactions || len(resp.Transactions) == 0 {
			break
		}
	}
	return all, nil
}

// Revoke removes the item on Plaid's side, invalidating the access token.
func (c *PlaidClient) Revoke(ctx context.Context, accessToken string) error {
	if c.cfg.DemoMode {
		return nil
	}
	body := c.auth(map[string]any{"access_token": accessToken})
	if err := c.api.doJSON(ctx, "POST", "/item/remove", nil, body, nil); err != nil {
		return fmt.Errorf("failed to remove Plaid item: %w", err)
	}
	return nil
}

type plaidWebhookPayload struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
}

// DecodeWebhook parses a Plaid webhook. Plaid does not assign event ids, so
// EventID is left empty and the ingress layer derives one from the payload.
func (c *PlaidClient) DecodeWebhook(payload []byte) (*provider.WebhookEvent, error) {
	var p plaidWebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode Plaid webhook: %w", err)
	}
	if p.ItemID == "" {
		return nil, fmt.Errorf("plaid webhook missing item_id")
	}
	return &provider.WebhookEvent{
		ExternalItemID: p.ItemID,
		Kind:           p.WebhookType + "." + p.WebhookCode,
	}, nil
}

// floatAmount converts an optional float balance into a decimal.
func floatAmount(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}
