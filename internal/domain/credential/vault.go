package credential

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"moneta/internal/domain/provider"
)

// DefaultExpiryMargin is how close to expiry a token may be before the
// vault refreshes it instead of handing it out.
const DefaultExpiryMargin = 5 * time.Minute

// ProviderResolver resolves the provider implementation owning a
// connection. Implemented by the connection service; kept narrow so the
// vault stays testable without the lifecycle machinery.
type ProviderResolver interface {
	ProviderFor(ctx context.Context, connectionID string) (provider.Provider, error)
}

// Vault hands out valid access tokens, refreshing them through the owning
// provider when they are near expiry. Concurrent refreshes for the same
// connection collapse into a single upstream call.
type Vault struct {
	repo     Repository
	resolver ProviderResolver
	margin   time.Duration
	group    singleflight.Group
	now      func() time.Time
}

// NewVault creates a vault with the default expiry margin.
func NewVault(repo Repository, resolver ProviderResolver) *Vault {
	return &Vault{
		repo:     repo,
		resolver: resolver,
		margin:   DefaultExpiryMargin,
		now:      time.Now,
	}
}

// NewVaultWithMargin creates a vault with a custom expiry margin.
func NewVaultWithMargin(repo Repository, resolver ProviderResolver, margin time.Duration) *Vault {
	v := NewVault(repo, resolver)
	if margin > 0 {
		v.margin = margin
	}
	return v
}

// AccessToken returns a valid access token for the connection. Tokens with
// no expiry, or expiring beyond the safety margin, are returned unchanged.
// Expired tokens are refreshed and persisted before returning; providers
// without refresh capability yield ErrCredentialExpired.
func (v *Vault) AccessToken(ctx context.Context, connectionID string) (string, error) {
	cred, err := v.repo.GetByConnectionID(ctx, connectionID)
	if err != nil {
		return "", err
	}

	if cred.ExpiresAt == nil || cred.ExpiresAt.After(v.now().Add(v.margin)) {
		return cred.AccessToken, nil
	}

	// Single-flight: racing sync/webhook triggers share one refresh call
	// and all observe the same token or the same error.
	token, err, _ := v.group.Do(connectionID, func() (any, error) {
		return v.refresh(ctx, connectionID)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (v *Vault) refresh(ctx context.Context, connectionID string) (string, error) {
	// Another caller may have refreshed between our read and the
	// single-flight slot; re-read before going upstream.
	cred, err := v.repo.GetByConnectionID(ctx, connectionID)
	if err != nil {
		return "", err
	}
	if cred.ExpiresAt == nil || cred.ExpiresAt.After(v.now().Add(v.margin)) {
		return cred.AccessToken, nil
	}

	p, err := v.resolver.ProviderFor(ctx, connectionID)
	if err != nil {
		return "", err
	}

	if !p.CanRefresh() || cred.RefreshToken == "" {
		return "", fmt.Errorf("%w: %s token expired and %s issues no refresh tokens",
			ErrCredentialExpired, connectionID, p.Name())
	}

	result, err := p.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, provider.ErrRefreshUnsupported) {
			return "", fmt.Errorf("%w: %v", ErrCredentialExpired, err)
		}
		// A rejected refresh token cannot recover without user action.
		return "", fmt.Errorf("%w: refresh rejected by %s: %v", ErrCredentialExpired, p.Name(), err)
	}

	updated := Credential{
		ConnectionID: connectionID,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
	}
	if updated.RefreshToken == "" {
		updated.RefreshToken = cred.RefreshToken
	}

	if err := v.repo.Upsert(ctx, updated); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	log.Printf("Refreshed access token for connection %s", connectionID)
	return updated.AccessToken, nil
}
