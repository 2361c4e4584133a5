package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/domain/provider"
)

const (
	yodleeSandboxURL    = "https://sandbox.api.yodlee.com/ysl"
	yodleeProductionURL = "https://production.api.yodlee.com/ysl"
	yodleeAPIVersion    = "1.1"
)

// YodleeConfig holds operator credentials for the Yodlee API.
type YodleeConfig struct {
	ClientID    string
	Secret      string
	Environment string // "sandbox" or "production"
	DemoMode    bool
}

// YodleeClient implements provider.Provider against the Yodlee aggregation
// API. Yodlee scopes user tokens to a loginName, links accounts through
// the FastLink widget, and identifies a linked bank by providerAccountId.
type YodleeClient struct {
	api *apiClient
	cfg YodleeConfig
}

var _ provider.Provider = (*YodleeClient)(nil)

// NewYodleeClient creates a Yodlee provider client.
func NewYodleeClient(cfg YodleeConfig) *YodleeClient {
	baseURL := yodleeSandboxURL
	if cfg.Environment == "production" {
		baseURL = yodleeProductionURL
	}
	return &YodleeClient{
		api: newAPIClient(baseURL, 5),
		cfg: cfg,
	}
}

func (c *YodleeClient) ID() string   { return "yodlee" }
func (c *YodleeClient) Name() string { return "Yodlee" }
func (c *YodleeClient) Logo() string {
	return "https://cdn.moneta.app/providers/yodlee.svg"
}
func (c *YodleeClient) Regions() []string  { return []string{"US", "GB", "AU", "IN", "ZA"} }
func (c *YodleeClient) Features() []string { return []string{"transactions", "balances"} }

func (c *YodleeClient) IsAvailable() bool {
	return c.cfg.DemoMode || (c.cfg.ClientID != "" && c.cfg.Secret != "")
}

func (c *YodleeClient) StableTransactionIDs() bool { return true }
func (c *YodleeClient) CanRefresh() bool           { return false }

type yodleeTokenResponse struct {
	Token struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int    `json:"expiresIn"`
	} `json:"token"`
}

// userToken mints an access token scoped to the given loginName. Yodlee
// tokens are short-lived; each sync mints a fresh one from the stored
// loginName.
func (c *YodleeClient) userToken(ctx context.Context, loginName string) (string, error) {
	if err := c.api.limiter.Wait(ctx); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("clientId", c.cfg.ClientID)
	form.Set("secret", c.cfg.Secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api.baseURL+"/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Api-Version", yodleeAPIVersion)
	req.Header.Set("loginName", loginName)

	resp, err := c.api.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", &apiError{StatusCode: resp.StatusCode, Body: "token request rejected"}
	}

	var token yodleeTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	return token.Token.AccessToken, nil
}

func (c *YodleeClient) headers(userToken string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + userToken,
		"Api-Version":   yodleeAPIVersion,
	}
}

// CreateLinkInitiation mints a user token for the FastLink widget.
func (c *YodleeClient) CreateLinkInitiation(ctx context.Context, userID, redirectTarget string) (*provider.LinkInitiation, error) {
	if c.cfg.DemoMode {
		return demoLinkInitiation(provider.LinkKindWidgetToken, c.ID()), nil
	}

	token, err := c.userToken(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Yodlee widget token: %w", err)
	}
	return &provider.LinkInitiation{Kind: provider.LinkKindWidgetToken, WidgetToken: token}, nil
}

// CompleteLink records the providerAccountId handed back by FastLink. The
// durable credential is the user's loginName, from which sync-time tokens
// are minted.
func (c *YodleeClient) CompleteLink(ctx context.Context, userID, oneTimeCode string, metadata provider.LinkMetadata) (*provider.ExchangeResult, error) {
	if c.cfg.DemoMode {
		return demoExchange(c.ID(), userID), nil
	}
	if oneTimeCode == "" {
		return nil, fmt.Errorf("%w: missing providerAccountId", provider.ErrProviderExchange)
	}

	// Verify the loginName can still mint tokens before persisting.
	if _, err := c.userToken(ctx, userID); err != nil {
		if isExchangeRejection(err) {
			return nil, fmt.Errorf("%w: %v", provider.ErrProviderExchange, err)
		}
		return nil, fmt.Errorf("failed to verify Yodlee login: %w", err)
	}

	return &provider.ExchangeResult{
		AccessToken:    userID,
		ExternalItemID: oneTimeCode,
	}, nil
}

func (c *YodleeClient) Refresh(ctx context.Context, refreshToken string) (*provider.ExchangeResult, error) {
	return nil, provider.ErrRefreshUnsupported
}

type yodleeAccount struct {
	ID            int64  `json:"id"`
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	Container     string `json:"CONTAINER"`
	AccountType   string `json:"accountType"`
	Balance       *struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"balance"`
	AvailableBalance *struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"availableBalance"`
}

type yodleeAccountsResponse struct {
	Account []yodleeAccount `json:"account"`
}

func (c *YodleeClient) FetchAccounts(ctx context.Context, accessToken string) ([]provider.RawAccount, error) {
	if c.cfg.DemoMode {
		return demoAccounts("USD"), nil
	}

	token, err := c.userToken(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to mint Yodlee token: %w", err)
	}

	var resp yodleeAccountsResponse
	if err := c.api.doJSON(ctx, "GET", "/accounts", c.headers(token), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch Yodlee accounts: %w", err)
	}

	accounts := make([]provider.RawAccount, 0, len(resp.Account))
	for _, a := range resp.Account {
		mask := a.AccountNumber
		if len(mask) > 4 {
			mask = mask[len(mask)-4:]
		}
		raw := provider.RawAccount{
			ProviderAccountID: fmt.Sprintf("%d", a.ID),
			Name:              a.AccountName,
			Type:              strings.ToLower(a.Container),
			Subtype:           strings.ToLower(a.AccountType),
			Mask:              mask,
		}
		if a.Balance != nil {
			raw.CurrentBalance = decimal.NewFromFloat(a.Balance.Amount)
			raw.Currency = a.Balance.Currency
		}
		if a.AvailableBalance != nil {
			raw.AvailableBalance = decimal.NewFromFloat(a.AvailableBalance.Amount)
		}
		accounts = append(accounts, raw)
	}
	return accounts, nil
}

func (c *YodleeClient) FetchBalances(ctx context.Context, accessToken string) ([]provider.BalanceSnapshot, error) {
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

type yodleeTransaction struct {
	ID           int64  `json:"id"`
	BaseType     string `json:"baseType"` // "DEBIT" or "CREDIT"
	CategoryType string `json:"categoryType"`
	Category     string `json:"category"`
	Status       string `json:"status"` // "PENDING" or "POSTED"
	Date         string `json:"date"`
	AccountID    int64  `json:"accountId"`
	Description  struct {
		Original string `json:"original"`
		Simple   string `json:"simple"`
	} `json:"description"`
	Merchant struct {
		Name string `json:"name"`
	} `json:"merchant"`
	Amount struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"amount"`
}

type yodleeTransactionsResponse struct {
	Transaction []yodleeTransaction `json:"transaction"`
}

func (c *YodleeClient) FetchTransactions(ctx context.Context, accessToken, providerAccountID string, start, end time.Time) ([]provider.RawTransaction, error) {
	if c.cfg.DemoMode {
		return demoTransactions(providerAccountID, "USD", start, end, false), nil
	}

	token, err := c.userToken(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to mint Yodlee token: %w", err)
	}

	q := url.Values{}
	q.Set("accountId", providerAccountID)
	q.Set("fromDate", start.Format(time.DateOnly))
	q.Set("toDate", end.Format(time.DateOnly))

	var resp yodleeTransactionsResponse
	if err := c.api.doJSON(ctx, "GET", "/transactions?"+q.Encode(), c.headers(token), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch Yodlee transactions: %w", err)
	}

	txns := make([]provider.RawTransaction, 0, len(resp.Transaction))
	for _, t := range resp.Transaction {
		date, err := time.Parse(time.DateOnly, t.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transaction date '%s': %w", t.Date, err)
		}
		description := t.Description.Simple
		if description == "" {
			description = t.Description.Original
		}
		direction := t.BaseType
		txns = append(txns, provider.RawTransaction{
			ProviderTransactionID: fmt.Sprintf("%d", t.ID),
			ProviderAccountID:     providerAccountID,
			Amount:                decimal.NewFromFloat(t.Amount.Amount),
			Direction:             &direction,
			Description:           description,
			Merchant:              t.Merchant.Name,
			Date:                  date,
			Category:              strings.ToLower(t.Category),
			Pending:               strings.EqualFold(t.Status, "PENDING"),
			Currency:              t.Amount.Currency,
		})
	}
	return txns, nil
}

// Revoke unregisters the user, which drops all linked provider accounts.
func (c *YodleeClient) Revoke(ctx context.Context, accessToken string) error {
	if c.cfg.DemoMode {
		return nil
	}
	token, err := c.userToken(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("failed to mint Yodlee token: %w", err)
	}
	if err := c.api.doJSON(ctx, "POST", "/user/unregister", c.headers(token), nil, nil); err != nil {
		return fmt.Errorf("failed to unregister Yodlee user: %w", err)
	}
	return nil
}

type yodleeWebhookPayload struct {
	Event struct {
		Info string `json:"info"`
		Data struct {
			ProviderAccount []struct {
				ID int64 `json:"id"`
			} `json:"providerAccount"`
		} `json:"data"`
	} `json:"event"`
}

func (c *YodleeClient) DecodeWebhook(payload []byte) (*provider.WebhookEvent, error) {
	var p yodleeWebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode Yodlee webhook: %w", err)
	}
	if len(p.Event.Data.ProviderAccount) == 0 {
		return nil, fmt.Errorf("yodlee webhook missing providerAccount")
	}
	return &provider.WebhookEvent{
		ExternalItemID: fmt.Sprintf("%d", p.Event.Data.ProviderAccount[0].ID),
		Kind:           p.Event.Info,
	}, nil
}
