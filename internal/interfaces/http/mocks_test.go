package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"moneta/internal/domain/account"
	"moneta/internal/domain/connection"
	"moneta/internal/domain/credential"
	"moneta/internal/domain/provider"
	"moneta/internal/domain/sync"
	"moneta/internal/shared/middleware"
)

// stubProvider implements provider.Provider for handler tests.
type stubProvider struct {
	id                string
	regions           []string
	createLinkFunc    func(ctx context.Context, userID, redirectTarget string) (*provider.LinkInitiation, error)
	completeLinkFunc  func(ctx context.Context, userID, code string, md provider.LinkMetadata) (*provider.ExchangeResult, error)
	decodeWebhookFunc func(payload []byte) (*provider.WebhookEvent, error)
	stableTxnIDs      bool
}

func (s *stubProvider) ID() string {
	if s.id == "" {
		return "testbank"
	}
	return s.id
}
func (s *stubProvider) Name() string { return "Test Bank" }
func (s *stubProvider) Logo() string { return "" }
func (s *stubProvider) Regions() []string {
	if s.regions == nil {
		return []string{"US"}
	}
	return s.regions
}
func (s *stubProvider) Features() []string         { return []string{"transactions"} }
func (s *stubProvider) IsAvailable() bool          { return true }
func (s *stubProvider) StableTransactionIDs() bool { return s.stableTxnIDs }
func (s *stubProvider) CanRefresh() bool           { return false }

func (s *stubProvider) CreateLinkInitiation(ctx context.Context, userID, redirectTarget string) (*provider.LinkInitiation, error) {
	if s.createLinkFunc != nil {
		return s.createLinkFunc(ctx, userID, redirectTarget)
	}
	return &provider.LinkInitiation{Kind: provider.LinkKindWidgetToken, WidgetToken: "widget-token"}, nil
}

func (s *stubProvider) CompleteLink(ctx context.Context, userID, code string, md provider.LinkMetadata) (*provider.ExchangeResult, error) {
	if s.completeLinkFunc != nil {
		return s.completeLinkFunc(ctx, userID, code, md)
	}
	return &provider.ExchangeResult{AccessToken: "access-token", ExternalItemID: "item-1"}, nil
}

func (s *stubProvider) Refresh(ctx context.Context, refreshToken string) (*provider.ExchangeResult, error) {
	return nil, provider.ErrRefreshUnsupported
}

func (s *stubProvider) FetchAccounts(ctx context.Context, accessToken string) ([]provider.RawAccount, error) {
	return nil, nil
}

func (s *stubProvider) FetchBalances(ctx context.Context, accessToken string) ([]provider.BalanceSnapshot, error) {
	return nil, nil
}

func (s *stubProvider) FetchTransactions(ctx context.Context, accessToken, providerAccountID string, start, end time.Time) ([]provider.RawTransaction, error) {
	return nil, nil
}

func (s *stubProvider) Revoke(ctx context.Context, accessToken string) error { return nil }

func (s *stubProvider) DecodeWebhook(payload []byte) (*provider.WebhookEvent, error) {
	if s.decodeWebhookFunc != nil {
		return s.decodeWebhookFunc(payload)
	}
	return &provider.WebhookEvent{EventID: "evt-1", ExternalItemID: "item-1", Kind: "TRANSACTIONS.UPDATED"}, nil
}

// MockConnectionRepo implements connection.Repository for testing
type MockConnectionRepo struct {
	CreateFunc              func(ctx context.Context, params connection.CreateParams) (*connection.Connection, error)
	GetByIDFunc             func(ctx context.Context, id string) (*connection.Connection, error)
	GetByExternalItemIDFunc func(ctx context.Context, providerID, externalItemID string) (*connection.Connection, error)
	ListByUserIDFunc        func(ctx context.Context, userID string) ([]*connection.Connection, error)
	ListSyncableFunc        func(ctx context.Context) ([]*connection.Connection, error)
	UpdateStatusFunc        func(ctx context.Context, id string, status connection.Status, lastError *string) error
	MarkSyncedFunc          func(ctx context.Context, id string, syncedAt time.Time) error
	DisconnectFunc          func(ctx context.Context, id string, at time.Time) error
}

func (m *MockConnectionRepo) Create(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return nil, nil
}

func (m *MockConnectionRepo) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, connection.ErrConnectionNotFound
}

func (m *MockConnectionRepo) GetByExternalItemID(ctx context.Context, providerID, externalItemID string) (*connection.Connection, error) {
	if m.GetByExternalItemIDFunc != nil {
		return m.GetByExternalItemIDFunc(ctx, providerID, externalItemID)
	}
	return nil, connection.ErrConnectionNotFound
}

func (m *MockConnectionRepo) ListByUserID(ctx context.Context, userID string) ([]*connection.Connection, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockConnectionRepo) ListSyncable(ctx context.Context) ([]*connection.Connection, error) {
	if m.ListSyncableFunc != nil {
		return m.ListSyncableFunc(ctx)
	}
	return nil, nil
}

func (m *MockConnectionRepo) UpdateStatus(ctx context.Context, id string, status connection.Status, lastError *string) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status, lastError)
	}
	return nil
}

func (m *MockConnectionRepo) MarkSynced(ctx context.Context, id string, syncedAt time.Time) error {
	if m.MarkSyncedFunc != nil {
		return m.MarkSyncedFunc(ctx, id, syncedAt)
	}
	return nil
}

func (m *MockConnectionRepo) Disconnect(ctx context.Context, id string, at time.Time) error {
	if m.DisconnectFunc != nil {
		return m.DisconnectFunc(ctx, id, at)
	}
	return nil
}

// MockCredentialRepo implements credential.Repository for testing
type MockCredentialRepo struct {
	UpsertFunc            func(ctx context.Context, cred credential.Credential) error
	GetByConnectionIDFunc func(ctx context.Context, connectionID string) (*credential.Credential, error)
	ClearFunc             func(ctx context.Context, connectionID string) error
}

func (m *MockCredentialRepo) Upsert(ctx context.Context, cred credential.Credential) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, cred)
	}
	return nil
}

func (m *MockCredentialRepo) GetByConnectionID(ctx context.Context, connectionID string) (*credential.Credential, error) {
	if m.GetByConnectionIDFunc != nil {
		return m.GetByConnectionIDFunc(ctx, connectionID)
	}
	return nil, credential.ErrCredentialNotFound
}

func (m *MockCredentialRepo) Clear(ctx context.Context, connectionID string) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, connectionID)
	}
	return nil
}

// MockAccountRepo implements account.Repository for testing
type MockAccountRepo struct {
	UpsertFunc             func(ctx context.Context, params account.UpsertParams) (*account.ExternalAccount, error)
	GetByIDFunc            func(ctx context.Context, id string) (*account.ExternalAccount, error)
	ListByConnectionIDFunc func(ctx context.Context, connectionID string) ([]*account.ExternalAccount, error)
	ListByUserIDFunc       func(ctx context.Context, userID string) ([]*account.ExternalAccount, error)
	SetLastErrorFunc       func(ctx context.Context, id string, message *string) error
	HideFunc               func(ctx context.Context, id string) error
}

func (m *MockAccountRepo) Upsert(ctx context.Context, params account.UpsertParams) (*account.ExternalAccount, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return nil, nil
}

func (m *MockAccountRepo) GetByID(ctx context.Context, id string) (*account.ExternalAccount, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, account.ErrAccountNotFound
}

func (m *MockAccountRepo) ListByConnectionID(ctx context.Context, connectionID string) ([]*account.ExternalAccount, error) {
	if m.ListByConnectionIDFunc != nil {
		return m.ListByConnectionIDFunc(ctx, connectionID)
	}
	return nil, nil
}

func (m *MockAccountRepo) ListByUserID(ctx context.Context, userID string) ([]*account.ExternalAccount, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockAccountRepo) SetLastError(ctx context.Context, id string, message *string) error {
	if m.SetLastErrorFunc != nil {
		return m.SetLastErrorFunc(ctx, id, message)
	}
	return nil
}

func (m *MockAccountRepo) Hide(ctx context.Context, id string) error {
	if m.HideFunc != nil {
		return m.HideFunc(ctx, id)
	}
	return nil
}

// MockRunRepo implements sync.RunRepository for testing
type MockRunRepo struct {
	InsertFunc             func(ctx context.Context, run *sync.Run) error
	ListByConnectionIDFunc func(ctx context.Context, connectionID string, limit int) ([]*sync.Run, error)
}

func (m *MockRunRepo) Insert(ctx context.Context, run *sync.Run) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, run)
	}
	return nil
}

func (m *MockRunRepo) ListByConnectionID(ctx context.Context, connectionID string, limit int) ([]*sync.Run, error) {
	if m.ListByConnectionIDFunc != nil {
		return m.ListByConnectionIDFunc(ctx, connectionID, limit)
	}
	return nil, nil
}

// MockEventLog implements sync.WebhookEventLog for testing
type MockEventLog struct {
	MarkProcessedFunc func(ctx context.Context, providerID, eventID string) (bool, error)
}

func (m *MockEventLog) MarkProcessed(ctx context.Context, providerID, eventID string) (bool, error) {
	if m.MarkProcessedFunc != nil {
		return m.MarkProcessedFunc(ctx, providerID, eventID)
	}
	return true, nil
}

// MockSyncRunner implements SyncRunner for testing
type MockSyncRunner struct {
	SyncFunc func(ctx context.Context, connectionID string, trigger sync.Trigger, force bool) (*sync.Run, error)
}

func (m *MockSyncRunner) Sync(ctx context.Context, connectionID string, trigger sync.Trigger, force bool) (*sync.Run, error) {
	if m.SyncFunc != nil {
		return m.SyncFunc(ctx, connectionID, trigger, force)
	}
	return &sync.Run{ID: "run-1", ConnectionID: connectionID, Trigger: trigger, Outcome: sync.OutcomeSuccess}, nil
}

// newConnectionService wires a real service over mock repos, mirroring
// production construction.
func newConnectionService(p provider.Provider, conns *MockConnectionRepo, creds *MockCredentialRepo, accounts *MockAccountRepo) *connection.Service {
	return connection.NewService(provider.NewRegistry(p), conns, creds, accounts)
}

// authedRequest builds a request carrying auth context and path values.
func authedRequest(method, target, body, userID, region string, pathValues map[string]string) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := req.Context()
	if userID != "" {
		ctx = context.WithValue(ctx, middleware.UserIDKey, userID)
	}
	if region != "" {
		ctx = context.WithValue(ctx, middleware.RegionKey, region)
	}
	req = req.WithContext(ctx)
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	return req
}

func testConnection(id, userID string) *connection.Connection {
	now := time.Now().UTC()
	return &connection.Connection{
		ID:              id,
		UserID:          userID,
		ProviderID:      "testbank",
		ExternalItemID:  "item-1",
		InstitutionName: "Test Bank",
		Status:          connection.StatusSynced,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
