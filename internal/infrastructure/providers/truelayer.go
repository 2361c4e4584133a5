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
	truelayerAuthURL = "https://auth.truelayer.com"
	truelayerDataURL = "https://api.truelayer.com"
	truelayerScope   = "info accounts balance transactions offline_access"
)

// TrueLayerConfig holds operator credentials for the TrueLayer API.
type TrueLayerConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	DemoMode     bool
}

// TrueLayerClient implements provider.Provider against TrueLayer's data
// API. TrueLayer uses an OAuth redirect flow, issues expiring access tokens
// with refresh tokens, and encodes expenses as negative amounts.
type TrueLayerClient struct {
	auth *apiClient
	data *apiClient
	cfg  TrueLayerConfig
}

var _ provider.Provider = (*TrueLayerClient)(nil)

// NewTrueLayerClient creates a TrueLayer provider client.
func NewTrueLayerClient(cfg TrueLayerConfig) *TrueLayerClient {
	return &TrueLayerClient{
		auth: newAPIClient(truelayerAuthURL, 5),
		data: newAPIClient(truelayerDataURL, 5),
		cfg:  cfg,
	}
}

func (c *TrueLayerClient) ID() string   { return "truelayer" }
func (c *TrueLayerClient) Name() string { return "TrueLayer" }
func (c *TrueLayerClient) Logo() string {
	return "https://cdn.moneta.app/providers/truelayer.svg"
}
func (c *TrueLayerClient) Regions() []string {
	return []string{"GB", "IE", "FR", "DE", "ES", "IT", "NL"}
}
func (c *TrueLayerClient) Features() []string { return []string{"transactions", "balances"} }

func (c *TrueLayerClient) IsAvailable() bool {
	return c.cfg.DemoMode || (c.cfg.ClientID != "" && c.cfg.ClientSecret != "")
}

func (c *TrueLayerClient) StableTransactionIDs() bool { return true }
func (c *TrueLayerClient) CanRefresh() bool           { return true }

// CreateLinkInitiation builds the authorization URL locally. No network
// call: the user completes consent on TrueLayer's side and comes back with
// a one-time code.
func (c *TrueLayerClient) CreateLinkInitiation(ctx context.Context, userID, redirectTarget string) (*provider.LinkInitiation, error) {
	if c.cfg.DemoMode {
		return demoLinkInitiation(provider.LinkKindRedirectAuth, c.ID()), nil
	}

	redirect := c.cfg.RedirectURI
	if redirectTarget != "" {
		redirect = redirectTarget
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("scope", truelayerScope)
	q.Set("redirect_uri", redirect)
	q.Set("providers", "uk-ob-all uk-oauth-all")

	return &provider.LinkInitiation{
		Kind:    provider.LinkKindRedirectAuth,
		AuthURL: truelayerAuthURL + "/?" + q.Encode(),
	}, nil
}

type truelayerTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// postToken executes a form-urlencoded token request against the auth host.
func (c *TrueLayerClient) postToken(ctx context.Context, form url.Values) (*truelayerTokenResponse, error) {
	if err := c.auth.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.auth.baseURL+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.auth.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{StatusCode: resp.StatusCode, Body: "token request rejected"}
	}

	var token truelayerTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	return &token, nil
}

type truelayerMeResponse struct {
	Results []struct {
		CredentialsID string `json:"credentials_id"`
	} `json:"results"`
}

// CompleteLink exchanges the authorization code for tokens and resolves the
// credentials id that TrueLayer uses to identify the linked bank.
func (c *TrueLayerClient) CompleteLink(ctx context.Context, userID, oneTimeCode string, metadata provider.LinkMetadata) (*provider.ExchangeResult, error) {
	if c.cfg.DemoMode {
		return demoExchange(c.ID(), userID), nil
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("code", oneTimeCode)

	token, err := c.postToken(ctx, form)
	if err != nil {
		if isExchangeRejection(err) {
			return nil, fmt.Errorf("%w: %v", provider.ErrProviderExchange, err)
		}
		return nil, fmt.Errorf("failed to exchange TrueLayer code: %w", err)
	}

	var me truelayerMeResponse
	if err := c.data.doJSON(ctx, "GET", "/data/v1/me", bearer(token.AccessToken), nil, &me); err != nil {
		return nil, fmt.Errorf("failed to resolve TrueLayer credentials id: %w", err)
	}
	externalItemID := ""
	if len(me.Results) > 0 {
		externalItemID = me.Results[0].CredentialsID
	}

	expiresAt := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return &provider.ExchangeResult{
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		ExternalItemID: externalItemID,
		ExpiresAt:      &expiresAt,
	}, nil
}

// Refresh exchanges a refresh token for a new access token pair.
func (c *TrueLayerClient) Refresh(ctx context.Context, refreshToken string) (*provider.ExchangeResult, error) {
	if c.cfg.DemoMode {
		expiresAt := time.Now().Add(time.Hour)
		return &provider.ExchangeResult{AccessToken: "demo-truelayer-refreshed", ExpiresAt: &expiresAt}, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("refresh_token", refreshToken)

	token, err := c.postToken(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh TrueLayer token: %w", err)
	}

	expiresAt := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return &provider.ExchangeResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    &expiresAt,
	}, nil
}

type truelayerAccount struct {
	AccountID string `json:"account_id"`
	Type      string `json:"account_type"`
	Name      string `json:"display_name"`
	Currency  string `json:"currency"`
	Number    struct {
		Number string `json:"number"`
	} `json:"account_number"`
}

type truelayerAccountsResponse struct {
	Results []truelayerAccount `json:"results"`
}

func (c *TrueLayerClient) FetchAccounts(ctx context.Context, accessToken string) ([]provider.RawAccount, error) {
	if c.cfg.DemoMode {
		return demoAccounts("GBP"), nil
	}

	var resp truelayerAccountsResponse
	if err := c.data.doJSON(ctx, "GET", "/data/v1/accounts", bearer(accessToken), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch TrueLayer accounts: %w", err)
	}

	accounts := make([]provider.RawAccount, 0, len(resp.Results))
	for _, a := range resp.Results {
		mask := a.Number.Number
		if len(mask) > 4 {
			mask = mask[len(mask)-4:]
		}
		accounts = append(accounts, provider.RawAccount{
			ProviderAccountID: a.AccountID,
			Name:              a.Name,
			Type:              strings.ToLower(a.Type),
			Mask:              mask,
			Currency:          a.Currency,
		})
	}
	return accounts, nil
}

type truelayerBalanceResponse struct {
	Results []struct {
		Current   float64 `json:"current"`
		Available float64 `json:"available"`
		Currency  string  `json:"currency"`
	} `json:"results"`
}

// FetchBalances hits the per-account balance endpoint for each account.
func (c *TrueLayerClient) FetchBalances(ctx context.Context, accessToken string) ([]provider.BalanceSnapshot, error) {
	if c.cfg.DemoMode {
		var snaps []provider.BalanceSnapshot
		for _, a := range demoAccounts("GBP") {
			snaps = append(snaps, provider.BalanceSnapshot{
				ProviderAccountID: a.ProviderAccountID,
				Current:           a.CurrentBalance,
				Available:         a.AvailableBalance,
				Currency:          a.Currency,
			})
		}
		return snaps, nil
	}

	accounts, err := c.FetchAccounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	snaps := make([]provider.BalanceSnapshot, 0, len(accounts))
	for _, a := range accounts {
		var resp truelayerBalanceResponse
		path := fmt.Sprintf("/data/v1/accounts/%s/balance", url.PathEscape(a.ProviderAccountID))
		if err := c.data.doJSON(ctx, "GET", path, bearer(accessToken), nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch balance for account %s: %w", a.ProviderAccountID, err)
		}
		if len(resp.Results) == 0 {
			continue
		}
		b := resp.Results[0]
		snaps = append(snaps, provider.BalanceSnapshot{
			ProviderAccountID: a.ProviderAccountID,
			Current:           decimal.NewFromFloat(b.Current),
			Available:         decimal.NewFromFloat(b.Available),
			Currency:          b.Currency,
		})
	}
	return snaps, nil
}

type truelayerTransaction struct {
	TransactionID  string   `json:"transaction_id"`
	Timestamp      string   `json:"timestamp"`
	Description    string   `json:"description"`
	Amount         float64  `json:"amount"`
	Currency       string   `json:"currency"`
	Type           string   `json:"transaction_type"` // "DEBIT" or "CREDIT"
	Classification []string `json:"transaction_classification"`
	MerchantName   string   `json:"merchant_name"`
}

type truelayerTransactionsResponse struct {
	Results []truelayerTransaction `json:"results"`
}

func (c *TrueLayerClient) FetchTransactions(ctx context.Context, accessToken, providerAccountID string, start, end time.Time) ([]provider.RawTransaction, error) {
	if c.cfg.DemoMode {
		return demoTransactions(providerAccountID, "GBP", start, end, false), nil
	}

	q := url.Values{}
	q.Set("from", start.UTC().Format(time.RFC3339))
	q.Set("to", end.UTC().Format(time.RFC3339))
	path := fmt.Sprintf("/data/v1/accounts/%s/transactions?%s", url.PathEscape(providerAccountID), q.Encode())

	var resp truelayerTransactionsResponse
	if err := c.data.doJSON(ctx, "GET", path, bearer(accessToken), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch TrueLayer transactions: %w", err)
	}

	txns := make([]provider.RawTransaction, 0, len(resp.Results))
	for _, t := range resp.Results {
		date, err := time.Parse(time.RFC3339, t.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse transaction timestamp '%s': %w", t.Timestamp, err)
		}
		category := ""
		if len(t.Classification) > 0 {
			category = t.Classification[len(t.Classification)-1]
		}
		direction := t.Type
		txns = append(txns, provider.RawTransaction{
			ProviderTransactionID: t.TransactionID,
			ProviderAccountID:     providerAccountID,
			Amount:                decimal.NewFromFloat(t.Amount),
			Direction:             &direction,
			Description:           t.Description,
			Merchant:              t.MerchantName,
			Date:                  date,
			Category:              category,
			Currency:              t.Currency,
		})
	}
	return txns, nil
}

// Revoke is a no-op: TrueLayer consents lapse on their own and there is no
// revocation endpoint on the data API.
func (c *TrueLayerClient) Revoke(ctx context.Context, accessToken string) error {
	return nil
}

type truelayerWebhookPayload struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	CredentialsID string `json:"credentials_id"`
}

func (c *TrueLayerClient) DecodeWebhook(payload []byte) (*provider.WebhookEvent, error) {
	var p truelayerWebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode TrueLayer webhook: %w", err)
	}
	if p.CredentialsID == "" {
		return nil, fmt.Errorf("truelayer webhook missing credentials_id")
	}
	return &provider.WebhookEvent{
		EventID:        p.EventID,
		ExternalItemID: p.CredentialsID,
		Kind:           p.Type,
	}, nil
}

// bearer builds an Authorization header map.
func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
