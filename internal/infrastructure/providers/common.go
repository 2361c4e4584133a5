// Package providers contains the concrete bank aggregation clients
// implementing the provider.Provider contract: Plaid, TrueLayer, Belvo and
// Yodlee. Each client wraps the upstream REST API with a rate limiter and
// supports a demo mode that serves fixture data without credentials.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const defaultTimeout = 60 * time.Second

// httpDoer lets tests substitute the transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// apiClient is the shared request plumbing for all provider clients.
type apiClient struct {
	httpClient httpDoer
	baseURL    string
	limiter    *rate.Limiter
}

func newAPIClient(baseURL string, rps float64) *apiClient {
	return &apiClient{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// doJSON executes one rate-limited request and unmarshals the response into
// out. Non-2xx responses come back as errors carrying the upstream body.
func (c *apiClient) doJSON(ctx context.Context, method, path string, headers map[string]string, reqBody, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// apiError carries the upstream status so callers can distinguish auth
// failures from transient errors.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// isExchangeRejection reports whether err is an upstream 4xx. Providers
// reject invalid or expired one-time codes with 400, not just 401/403
// (Plaid sends INVALID_PUBLIC_TOKEN, TrueLayer invalid_grant), so the
// exchange call sites treat the whole 4xx range as a bad code. 5xx stays
// transient.
func isExchangeRejection(err error) bool {
	var ae *apiError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.StatusCode >= 400 && ae.StatusCode < 500
}
