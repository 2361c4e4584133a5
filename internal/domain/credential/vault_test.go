package credential

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"moneta/internal/domain/provider"
)

// MockCredentialRepo implements Repository for testing.
type MockCredentialRepo struct {
	mu    sync.Mutex
	creds map[string]Credential
}

func NewMockCredentialRepo() *MockCredentialRepo {
	return &MockCredentialRepo{creds: make(map[string]Credential)}
}

func (m *MockCredentialRepo) Upsert(ctx context.Context, cred Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.ConnectionID] = cred
	return nil
}

func (m *MockCredentialRepo) GetByConnectionID(ctx context.Context, connectionID string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[connectionID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	copied := cred
	return &copied, nil
}

func (m *MockCredentialRepo) Clear(ctx context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, connectionID)
	return nil
}

// refreshingProvider counts upstream refresh calls.
type refreshingProvider struct {
	provider.Provider // panics on anything not overridden

	canRefresh   bool
	refreshCalls atomic.Int64
	refreshErr   error
	refreshDelay time.Duration
}

func (p *refreshingProvider) Name() string     { return "fake" }
func (p *refreshingProvider) CanRefresh() bool { return p.canRefresh }

func (p *refreshingProvider) Refresh(ctx context.Context, refreshToken string) (*provider.ExchangeResult, error) {
	p.refreshCalls.Add(1)
	if p.refreshDelay > 0 {
		time.Sleep(p.refreshDelay)
	}
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	expires := time.Now().Add(1 * time.Hour)
	return &provider.ExchangeResult{
		AccessToken:  "fresh-token",
		RefreshToken: "fresh-refresh",
		ExpiresAt:    &expires,
	}, nil
}

type staticResolver struct{ p provider.Provider }

func (r staticResolver) ProviderFor(ctx context.Context, connectionID string) (provider.Provider, error) {
	return r.p, nil
}

func expiredCredential(connID string) Credential {
	expired := time.Now().Add(-1 * time.Minute)
	return Credential{
		ConnectionID: connID,
		AccessToken:  "stale-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    &expired,
	}
}

func TestAccessToken_NoExpiryReturnsStored(t *testing.T) {
	repo := NewMockCredentialRepo()
	repo.Upsert(context.Background(), Credential{ConnectionID: "conn-1", AccessToken: "forever-token"})

	p := &refreshingProvider{canRefresh: true}
	vault := NewVault(repo, staticResolver{p})

	token, err := vault.AccessToken(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("AccessToken() failed: %v", err)
	}
	if token != "forever-token" {
		t.Errorf("token = %q, want stored token", token)
	}
	if p.refreshCalls.Load() != 0 {
		t.Errorf("refresh called %d times for non-expiring token", p.refreshCalls.Load())
	}
}

func TestAccessToken_FarFromExpiryReturnsStored(t *testing.T) {
	repo := NewMockCredentialRepo()
	future := time.Now().Add(2 * time.Hour)
	repo.Upsert(context.Background(), Credential{ConnectionID: "conn-1", AccessToken: "valid-token", ExpiresAt: &future})

	p := &refreshingProvider{canRefresh: true}
	vault := NewVault(repo, staticResolver{p})

	token, err := vault.AccessToken(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("AccessToken() failed: %v", err)
	}
	if token != "valid-token" || p.refreshCalls.Load() != 0 {
		t.Errorf("expected stored token without refresh, got %q after %d refresh calls", token, p.refreshCalls.Load())
	}
}

func TestAccessToken_ExpiredRefreshesAndPersists(t *testing.T) {
	repo := NewMockCredentialRepo()
	repo.Upsert(context.Background(), expiredCredential("conn-1"))

	p := &refreshingProvider{canRefresh: true}
	vault := NewVault(repo, staticResolver{p})

	token, err := vault.AccessToken(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("AccessToken() failed: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("token = %q, want refreshed token", token)
	}

	stored, _ := repo.GetByConnectionID(context.Background(), "conn-1")
	if stored.AccessToken != "fresh-token" || stored.RefreshToken != "fresh-refresh" {
		t.Errorf("refreshed credential not persisted: %+v", stored)
	}
}

func TestAccessToken_SingleFlight(t *testing.T) {
	repo := NewMockCredentialRepo()
	repo.Upsert(context.Background(), expiredCredential("conn-1"))

	p := &refreshingProvider{canRefresh: true, refreshDelay: 50 * time.Millisecond}
	vault := NewVault(repo, staticResolver{p})

	const callers = 5
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = vault.AccessToken(context.Background(), "conn-1")
		}(i)
	}
	wg.Wait()

	if got := p.refreshCalls.Load(); got != 1 {
		t.Errorf("upstream refresh called %d times, want exactly 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("caller %d got error: %v", i, errs[i])
		}
		if tokens[i] != "fresh-token" {
			t.Errorf("caller %d got token %q, want shared refreshed token", i, tokens[i])
		}
	}
}

func TestAccessToken_NoRefreshCapability(t *testing.T) {
	repo := NewMockCredentialRepo()
	repo.Upsert(context.Background(), expiredCredential("conn-1"))

	p := &refreshingProvider{canRefresh: false}
	vault := NewVault(repo, staticResolver{p})

	_, err := vault.AccessToken(context.Background(), "conn-1")
	if !errors.Is(err, ErrCredentialExpired) {
		t.Fatalf("expected ErrCredentialExpired, got %v", err)
	}
	if p.refreshCalls.Load() != 0 {
		t.Errorf("refresh attempted despite missing capability")
	}
}

func TestAccessToken_RefreshRejected(t *testing.T) {
	repo := NewMockCredentialRepo()
	repo.Upsert(context.Background(), expiredCredential("conn-1"))

	p := &refreshingProvider{canRefresh: true, refreshErr: errors.New("invalid_grant")}
	vault := NewVault(repo, staticResolver{p})

	_, err := vault.AccessToken(context.Background(), "conn-1")
	if !errors.Is(err, ErrCredentialExpired) {
		t.Fatalf("expected ErrCredentialExpired for rejected refresh, got %v", err)
	}
}

func TestAccessToken_MissingCredential(t *testing.T) {
	vault := NewVault(NewMockCredentialRepo(), staticResolver{&refreshingProvider{}})

	_, err := vault.AccessToken(context.Background(), "conn-x")
	if !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}
