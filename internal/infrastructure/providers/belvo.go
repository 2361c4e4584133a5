package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/domain/provider"
)

const (
	belvoProductionURL = "https://api.belvo.com"
	belvoSandboxURL    = "https://sandbox.belvo.com"
)

// BelvoConfig holds operator credentials for the Belvo API.
type BelvoConfig struct {
	SecretID       string
	SecretPassword string
	Environment    string // "sandbox" or "production"
	DemoMode       bool
}

// BelvoClient implements provider.Provider against the Belvo API for Latin
// American institutions. Belvo authenticates every call with operator-level
// basic auth; the per-connection credential is the link id minted by the
// Belvo widget. Belvo transaction ids are not stable across re-fetches, so
// deduplication falls back to content hashing downstream.
type BelvoClient struct {
	api *apiClient
	cfg BelvoConfig
}

var _ provider.Provider = (*BelvoClient)(nil)

// NewBelvoClient creates a Belvo provider client.
func NewBelvoClient(cfg BelvoConfig) *BelvoClient {
	baseURL := belvoSandboxURL
	if cfg.Environment == "production" {
		baseURL = belvoProductionURL
	}
	return &BelvoClient{
		api: newAPIClient(baseURL, 5),
		cfg: cfg,
	}
}

func (c *BelvoClient) ID() string   { return "belvo" }
func (c *BelvoClient) Name() string { return "Belvo" }
func (c *BelvoClient) Logo() string {
	return "https://cdn.moneta.app/providers/belvo.svg"
}
func (c *BelvoClient) Regions() []string  { return []string{"BR", "MX", "CO"} }
func (c *BelvoClient) Features() []string { return []string{"transactions", "balances"} }

func (c *BelvoClient) IsAvailable() bool {
	return c.cfg.DemoMode || (c.cfg.SecretID != "" && c.cfg.SecretPassword != "")
}

func (c *BelvoClient) StableTransactionIDs() bool { return false }
func (c *BelvoClient) CanRefresh() bool           { return false }

func (c *BelvoClient) basicAuth() map[string]string {
	creds := base64.StdEncoding.EncodeToString([]byte(c.cfg.SecretID + ":" + c.cfg.SecretPassword))
	return map[string]string{"Authorization": "Basic " + creds}
}

type belvoTokenResponse struct {
	Access string `json:"access"`
}

// CreateLinkInitiation mints a short-lived widget access token for the
// Belvo Connect widget.
func (c *BelvoClient) CreateLinkInitiation(ctx context.Context, userID, redirectTarget string) (*provider.LinkInitiation, error) {
	if c.cfg.DemoMode {
		return demoLinkInitiation(provider.LinkKindWidgetToken, c.ID()), nil
	}

	body := map[string]any{
		"id":       c.cfg.SecretID,
		"password": c.cfg.SecretPassword,
		"scopes":   "read_institutions,write_links,read_links",
	}
	var resp belvoTokenResponse
	if err := c.api.doJSON(ctx, "POST", "/api/token/", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("failed to create Belvo widget token: %w", err)
	}
	return &provider.LinkInitiation{Kind: provider.LinkKindWidgetToken, WidgetToken: resp.Access}, nil
}

type belvoLink struct {
	ID          string `json:"id"`
	Institution string `json:"institution"`
	Status      string `json:"status"`
}

// CompleteLink validates the link id handed back by the widget. The link id
// is the durable per-connection credential; Belvo has no token exchange.
func (c *BelvoClient) CompleteLink(ctx context.Context, userID, oneTimeCode string, metadata provider.LinkMetadata) (*provider.ExchangeResult, error) {
	if c.cfg.DemoMode {
		return demoExchange(c.ID(), userID), nil
	}

	var link belvoLink
	path := "/api/links/" + url.PathEscape(oneTimeCode) + "/"
	if err := c.api.doJSON(ctx, "GET", path, c.basicAuth(), nil, &link); err != nil {
		if isExchangeRejection(err) {
			return nil, fmt.Errorf("%w: %v", provider.ErrProviderExchange, err)
		}
		return nil, fmt.Errorf("failed to validate Belvo link: %w", err)
	}
	if link.Status == "invalid" {
		return nil, fmt.Errorf("%w: link %s is invalid", provider.ErrProviderExchange, link.ID)
	}

	return &provider.ExchangeResult{
		AccessToken:    link.ID,
		ExternalItemID: link.ID,
	}, nil
}

func (c *BelvoClient) Refresh(ctx context.Context, refreshToken string) (*provider.ExchangeResult, error) {
	return nil, provider.ErrRefreshUnsupported
}

type belvoAccount struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Type     string `json:"type"`
	Number   string `json:"number"`
	Currency string `json:"currency"`
	Balance  struct {
		Current   float64 `json:"current"`
		Available float64 `json:"available"`
	} `json:"balance"`
}

type belvoPage[T any] struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []T    `json:"results"`
}

func (c *BelvoClient) FetchAccounts(ctx context.Context, accessToken string) ([]provider.RawAccount, error) {
	if c.cfg.DemoMode {
		return demoAccounts("BRL"), nil
	}

	var accounts []provider.RawAccount
	path := "/api/accounts/?link=" + url.QueryEscape(accessToken)
	for path != "" {
		var page belvoPage[belvoAccount]
		if err := c.api.doJSON(ctx, "GET", path, c.basicAuth(), nil, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch Belvo accounts: %w", err)
		}
		for _, a := range page.Results {
			mask := a.Number
			if len(mask) > 4 {
				mask = mask[len(mask)-4:]
			}
			accounts = append(accounts, provider.RawAccount{
				ProviderAccountID: a.ID,
				Name:              a.Name,
				Type:              strings.ToLower(a.Category),
				Subtype:           strings.ToLower(a.Type),
				Mask:              mask,
				CurrentBalance:    decimal.NewFromFloat(a.Balance.Current),
				AvailableBalance:  decimal.NewFromFloat(a.Balance.Available),
				Currency:          a.Currency,
			})
		}
		path = relativePath(page.Next, c.api.baseURL)
	}
	return accounts, nil
}

func (c *BelvoClient) FetchBalances(ctx context.Context, accessToken string) ([]provider.BalanceSnapshot, error) {
	accounts, err := c.FetchAccounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	snaps := make([]provider.BalanceSnapshot, 0, len(accounts))
	for _, a := range accounts {
		snaps = append(snaps, provider.BalanceSnapshot{
			ProviderAccountID: a.ProviderAccountID,
			Current:           a.CurrentBalance,
			Available:         a.AvailableBalance,
			Currency:          a.Currency,
		})
	}
	return snaps, nil
}

type belvoTransaction struct {
	ID          string  `json:"id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	Merchant    struct {
		Name string `json:"name"`
	} `json:"merchant"`
	Category  string `json:"category"`
	Type      string `json:"type"` // "INFLOW" or "OUTFLOW"
	Status    string `json:"status"`
	ValueDate string `json:"value_date"`
}

func (c *BelvoClient) FetchTransactions(ctx context.Context, accessToken, providerAccountID string, start, end time.Time) ([]provider.RawTransaction, error) {
	if c.cfg.DemoMode {
		return demoTransactions(providerAccountID, "BRL", start, end, false), nil
	}

	q := url.Values{}
	q.Set("link", accessToken)
	q.Set("account", providerAccountID)
	q.Set("value_date__gte", start.Format(time.DateOnly))
	q.Set("value_date__lte", end.Format(time.DateOnly))

	var txns []provider.RawTransaction
	path := "/api/transactions/?" + q.Encode()
	for path != "" {
		var page belvoPage[belvoTransaction]
		if err := c.api.doJSON(ctx, "GET", path, c.basicAuth(), nil, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch Belvo transactions: %w", err)
		}
		for _, t := range page.Results {
			date, err := time.Parse(time.DateOnly, t.ValueDate)
			if err != nil {
				return nil, fmt.Errorf("failed to parse value_date '%s': %w", t.ValueDate, err)
			}
			direction := "CREDIT"
			if strings.EqualFold(t.Type, "OUTFLOW") {
				direction = "DEBIT"
			}
			txns = append(txns, provider.RawTransaction{
				ProviderTransactionID: t.ID,
				ProviderAccountID:     providerAccountID,
				Amount:                decimal.NewFromFloat(t.Amount),
				Direction:             &direction,
				Description:           t.Description,
				Merchant:              t.Merchant.Name,
				Date:                  date,
				Category:              strings.ToLower(t.Category),
				Pending:               strings.EqualFold(t.Status, "PENDING"),
				Currency:              t.Currency,
			})
		}
		path = relativePath(page.Next, c.api.baseURL)
	}
	return txns, nil
}

// Revoke deletes the link, which invalidates it for future data access.
func (c *BelvoClient) Revoke(ctx context.Context, accessToken string) error {
	if c.cfg.DemoMode {
		return nil
	}
	path := "/api/links/" + url.PathEscape(accessToken) + "/"
	if err := c.api.doJSON(ctx, "DELETE", path, c.basicAuth(), nil, nil); err != nil {
		return fmt.Errorf("failed to delete Belvo link: %w", err)
	}
	return nil
}

type belvoWebhookPayload struct {
	WebhookID   string `json:"webhook_id"`
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	LinkID      string `json:"link_id"`
}

func (c *BelvoClient) DecodeWebhook(payload []byte) (*provider.WebhookEvent, error) {
	var p belvoWebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode Belvo webhook: %w", err)
	}
	if p.LinkID == "" {
		return nil, fmt.Errorf("belvo webhook missing link_id")
	}
	return &provider.WebhookEvent{
		EventID:        p.WebhookID,
		ExternalItemID: p.LinkID,
		Kind:           p.WebhookType + "." + p.WebhookCode,
	}, nil
}

// relativePath rebases an absolute pagination URL onto the client base.
// Returns "" when there is no next page.
func relativePath(next, baseURL string) string {
	if next == "" {
		return ""
	}
	return strings.TrimPrefix(next, baseURL)
}
