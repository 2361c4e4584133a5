package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/domain/account"
	"moneta/internal/domain/connection"
	"moneta/internal/domain/credential"
	"moneta/internal/domain/provider"
	"moneta/internal/domain/transaction"
)

// stubProvider implements provider.Provider with overridable fetch hooks.
type stubProvider struct {
	fetchAccountsFunc     func(ctx context.Context, token string) ([]provider.RawAccount, error)
	fetchBalancesFunc     func(ctx context.Context, token string) ([]provider.BalanceSnapshot, error)
	fetchTransactionsFunc func(ctx context.Context, token, accountID string, start, end time.Time) ([]provider.RawTransaction, error)
	accountsCalls         atomic.Int64
}

func (s *stubProvider) ID() string                 { return "testbank" }
func (s *stubProvider) Name() string               { return "Test Bank" }
func (s *stubProvider) Logo() string               { return "" }
func (s *stubProvider) Regions() []string          { return []string{"US"} }
func (s *stubProvider) Features() []string         { return []string{"transactions"} }
func (s *stubProvider) IsAvailable() bool          { return true }
func (s *stubProvider) StableTransactionIDs() bool { return true }
func (s *stubProvider) CanRefresh() bool           { return false }

func (s *stubProvider) CreateLinkInitiation(ctx context.Context, userID, redirectTarget string) (*provider.LinkInitiation, error) {
	return &provider.LinkInitiation{Kind: provider.LinkKindWidgetToken, WidgetToken: "tok"}, nil
}

func (s *stubProvider) CompleteLink(ctx context.Context, userID, code string, md provider.LinkMetadata) (*provider.ExchangeResult, error) {
	return &provider.ExchangeResult{AccessToken: "access"}, nil
}

func (s *stubProvider) Refresh(ctx context.Context, refreshToken string) (*provider.ExchangeResult, error) {
	return nil, provider.ErrRefreshUnsupported
}

func (s *stubProvider) FetchAccounts(ctx context.Context, token string) ([]provider.RawAccount, error) {
	s.accountsCalls.Add(1)
	if s.fetchAccountsFunc != nil {
		return s.fetchAccountsFunc(ctx, token)
	}
	return []provider.RawAccount{
		{ProviderAccountID: "ext-checking", Name: "Checking", Type: "depository", CurrentBalance: decimal.NewFromInt(100), Currency: "USD"},
		{ProviderAccountID: "ext-savings", Name: "Savings", Type: "depository", CurrentBalance: decimal.NewFromInt(500), Currency: "USD"},
	}, nil
}

func (s *stubProvider) FetchBalances(ctx context.Context, token string) ([]provider.BalanceSnapshot, error) {
	if s.fetchBalancesFunc != nil {
		return s.fetchBalancesFunc(ctx, token)
	}
	return nil, nil
}

func (s *stubProvider) FetchTransactions(ctx context.Context, token, accountID string, start, end time.Time) ([]provider.RawTransaction, error) {
	if s.fetchTransactionsFunc != nil {
		return s.fetchTransactionsFunc(ctx, token, accountID, start, end)
	}
	return []provider.RawTransaction{
		{
			ProviderTransactionID: accountID + "-txn-1",
			ProviderAccountID:     accountID,
			Amount:                decimal.RequireFromString("-12.34"),
			Description:           "Coffee",
			Date:                  time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
			Currency:              "USD",
		},
	}, nil
}

func (s *stubProvider) Revoke(ctx context.Context, token string) error { return nil }

func (s *stubProvider) DecodeWebhook(payload []byte) (*provider.WebhookEvent, error) {
	return &provider.WebhookEvent{}, nil
}

// memConnRepo is an in-memory connection.Repository.
type memConnRepo struct {
	mu    sync.Mutex
	conns map[string]*connection.Connection
}

func newMemConnRepo(conns ...*connection.Connection) *memConnRepo {
	r := &memConnRepo{conns: make(map[string]*connection.Connection)}
	for _, c := range conns {
		cp := *c
		r.conns[c.ID] = &cp
	}
	return r
}

func (r *memConnRepo) Create(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	return nil, errors.New("not implemented")
}

func (r *memConnRepo) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, connection.ErrConnectionNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memConnRepo) GetByExternalItemID(ctx context.Context, providerID, externalItemID string) (*connection.Connection, error) {
	return nil, connection.ErrConnectionNotFound
}

func (r *memConnRepo) ListByUserID(ctx context.Context, userID string) ([]*connection.Connection, error) {
	return nil, nil
}

func (r *memConnRepo) ListSyncable(ctx context.Context) ([]*connection.Connection, error) {
	return nil, nil
}

func (r *memConnRepo) UpdateStatus(ctx context.Context, id string, status connection.Status, lastError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return connection.ErrConnectionNotFound
	}
	c.Status = status
	c.LastError = lastError
	return nil
}

func (r *memConnRepo) MarkSynced(ctx context.Context, id string, syncedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return connection.ErrConnectionNotFound
	}
	c.Status = connection.StatusSynced
	c.LastSyncedAt = &syncedAt
	c.LastError = nil
	return nil
}

func (r *memConnRepo) Disconnect(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return connection.ErrConnectionNotFound
	}
	c.Status = connection.StatusDisconnected
	c.DisconnectedAt = &at
	return nil
}

// memAccountRepo is an in-memory account.Repository keyed by
// (connectionID, providerAccountID).
type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*account.ExternalAccount
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[string]*account.ExternalAccount)}
}

func accountKey(connectionID, providerAccountID string) string {
	return connectionID + "/" + providerAccountID
}

func (r *memAccountRepo) Upsert(ctx context.Context, params account.UpsertParams) (*account.ExternalAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := accountKey(params.ConnectionID, params.ProviderAccountID)
	acc, ok := r.accounts[key]
	if !ok {
		acc = &account.ExternalAccount{ID: "acc-" + params.ProviderAccountID}
		r.accounts[key] = acc
	}
	acc.ConnectionID = params.ConnectionID
	acc.UserID = params.UserID
	acc.ProviderAccountID = params.ProviderAccountID
	acc.Name = params.Name
	acc.AccountType = params.AccountType
	acc.CurrentBalance = params.CurrentBalance
	acc.AvailableBalance = params.AvailableBalance
	acc.Currency = params.Currency
	acc.LastSyncedAt = &params.SyncedAt
	cp := *acc
	return &cp, nil
}

func (r *memAccountRepo) GetByID(ctx context.Context, id string) (*account.ExternalAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.accounts {
		if acc.ID == id {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, account.ErrAccountNotFound
}

func (r *memAccountRepo) ListByConnectionID(ctx context.Context, connectionID string) ([]*account.ExternalAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*account.ExternalAccount
	for _, acc := range r.accounts {
		if acc.ConnectionID == connectionID {
			cp := *acc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memAccountRepo) ListByUserID(ctx context.Context, userID string) ([]*account.ExternalAccount, error) {
	return nil, nil
}

func (r *memAccountRepo) SetLastError(ctx context.Context, id string, message *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.accounts {
		if acc.ID == id {
			acc.LastError = message
			return nil
		}
	}
	return account.ErrAccountNotFound
}

func (r *memAccountRepo) Hide(ctx context.Context, id string) error { return nil }

// memTxnRepo is an in-memory transaction.Repository keyed by
// (userID, dedupeKey).
type memTxnRepo struct {
	mu   sync.Mutex
	rows map[string]transaction.UpsertParams
}

func newMemTxnRepo() *memTxnRepo {
	return &memTxnRepo{rows: make(map[string]transaction.UpsertParams)}
}

func (r *memTxnRepo) Upsert(ctx context.Context, params transaction.UpsertParams) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := params.UserID + "/" + params.DedupeKey
	_, exists := r.rows[key]
	r.rows[key] = params
	return !exists, nil
}

func (r *memTxnRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *memTxnRepo) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.NormalizedTransaction, error) {
	return nil, nil
}

func (r *memTxnRepo) ListByUserID(ctx context.Context, userID string, from, to time.Time) ([]*transaction.NormalizedTransaction, error) {
	return nil, nil
}

func (r *memTxnRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

// memRunRepo is an in-memory RunRepository.
type memRunRepo struct {
	mu   sync.Mutex
	runs []*Run
}

func (r *memRunRepo) Insert(ctx context.Context, run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs = append(r.runs, &cp)
	return nil
}

func (r *memRunRepo) ListByConnectionID(ctx context.Context, connectionID string, limit int) ([]*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, nil
}

func (r *memRunRepo) last() *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return nil
	}
	return r.runs[len(r.runs)-1]
}

type tokenSourceFunc func(ctx context.Context, connectionID string) (string, error)

func (f tokenSourceFunc) AccessToken(ctx context.Context, connectionID string) (string, error) {
	return f(ctx, connectionID)
}

func staticTokens(token string) TokenSource {
	return tokenSourceFunc(func(ctx context.Context, connectionID string) (string, error) {
		return token, nil
	})
}

type fixture struct {
	orch     *Orchestrator
	provider *stubProvider
	conns    *memConnRepo
	accounts *memAccountRepo
	txns     *memTxnRepo
	runs     *memRunRepo
}

func testConnection(status connection.Status) *connection.Connection {
	return &connection.Connection{
		ID:         "conn-1",
		UserID:     "user-1",
		ProviderID: "testbank",
		Status:     status,
	}
}

func newFixture(conn *connection.Connection) *fixture {
	f := &fixture{
		provider: &stubProvider{},
		conns:    newMemConnRepo(conn),
		accounts: newMemAccountRepo(),
		txns:     newMemTxnRepo(),
		runs:     &memRunRepo{},
	}
	f.orch = NewOrchestrator(
		provider.NewRegistry(f.provider),
		staticTokens("access-token"),
		f.conns,
		f.accounts,
		f.txns,
		f.runs,
		NewNormalizer(),
		Config{RetryBaseDelay: time.Millisecond},
	)
	return f
}

func TestSync_Success(t *testing.T) {
	f := newFixture(testConnection(connection.StatusLinked))

	run, err := f.orch.Sync(context.Background(), "conn-1", TriggerManual, false)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if run.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %s, want %s", run.Outcome, OutcomeSuccess)
	}
	if run.AccountsSynced != 2 || run.AccountsFailed != 0 {
		t.Errorf("accounts synced=%d failed=%d, want 2/0", run.AccountsSynced, run.AccountsFailed)
	}
	if run.TransactionsUpserted != 2 {
		t.Errorf("TransactionsUpserted = %d, want 2", run.TransactionsUpserted)
	}

	conn, _ := f.conns.GetByID(context.Background(), "conn-1")
	if conn.Status != connection.StatusSynced {
		t.Errorf("connection status = %s, want %s", conn.Status, connection.StatusSynced)
	}
	if conn.LastSyncedAt == nil {
		t.Error("lastSyncedAt not stamped")
	}
	if got := f.runs.last(); got == nil || got.Outcome != OutcomeSuccess {
		t.Error("sync run not recorded")
	}
}

func TestSync_IdempotentResync(t *testing.T) {
	f := newFixture(testConnection(connection.StatusLinked))
	ctx := context.Background()

	if _, err := f.orch.Sync(ctx, "conn-1", TriggerManual, false); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	before := f.txns.count()

	if _, err := f.orch.Sync(ctx, "conn-1", TriggerManual, true); err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if after := f.txns.count(); after != before {
		t.Errorf("transaction count grew from %d to %d on re-sync", before, after)
	}
}

func TestSync_PartialFailure(t *testing.T) {
	f := newFixture(testConnection(connection.StatusLinked))
	f.provider.fetchTransactionsFunc = func(ctx context.Context, token, accountID string, start, end time.Time) ([]provider.RawTransaction, error) {
		if accountID == "ext-savings" {
			return nil, errors.New("upstream timeout")
		}
		return []provider.RawTransaction{{
			ProviderTransactionID: "txn-1",
			ProviderAccountID:     accountID,
			Amount:                decimal.RequireFromString("-5"),
			Description:           "Snack",
			Date:                  time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
			Currency:              "USD",
		}}, nil
	}

	run, err := f.orch.Sync(context.Background(), "conn-1", TriggerManual, false)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if run.Outcome != OutcomePartial {
		t.Errorf("Outcome = %s, want %s", run.Outcome, OutcomePartial)
	}
	if run.AccountsSynced != 1 || run.AccountsFailed != 1 {
		t.Errorf("accounts synced=%d failed=%d, want 1/1", run.AccountsSynced, run.AccountsFailed)
	}

	// Connection stays healthy; only the failed account carries an error.
	conn, _ := f.conns.GetByID(context.Background(), "conn-1")
	if conn.Status != connection.StatusSynced {
		t.Errorf("connection status = %s, want %s", conn.Status, connection.StatusSynced)
	}
	failed, err := f.accounts.GetByID(context.Background(), "acc-ext-savings")
	if err != nil {
		t.Fatalf("failed account not persisted: %v", err)
	}
	if failed.LastError == nil {
		t.Error("failed account has no lastError")
	}
	ok, _ := f.accounts.GetByID(context.Background(), "acc-ext-checking")
	if ok.LastError != nil {
		t.Errorf("healthy account has lastError %q", *ok.LastError)
	}
}

func TestSync_AllAccountsFail(t *testing.T) {
	f := newFixture(testConnection(connection.StatusLinked))
	f.provider.fetchTransactionsFunc = func(ctx context.Context, token, accountID string, start, end time.Time) ([]provider.RawTransaction, error) {
		return nil, errors.New("upstream down")
	}

	run, err := f.orch.Sync(context.Background(), "conn-1", TriggerManual, false)
	if err == nil {
		t.Fatal("expected error when every account fails")
	}
	if run == nil || run.Outcome != OutcomeError {
		t.Fatalf("run outcome = %v, want %s", run, OutcomeError)
	}

	conn, _ := f.conns.GetByID(context.Background(), "conn-1")
	if conn.Status != connection.StatusError {
		t.Errorf("connection status = %s, want %s", conn.Status, connection.StatusError)
	}
	if conn.LastError == nil {
		t.Error("connection lastError not recorded")
	}
}

func TestSync_AccountFetchFailure(t *testing.T) {
	f := newFixture(testConnection(connection.StatusLinked))
	f.provider.fetchAccountsFunc = func(ctx context.Context, token string) ([]provider.RawAccount, error) {
		return nil, errors.New("connection refused")
	}

	_, err := f.orch.Sync(context.Background(), "conn-1", TriggerManual, false)
	if err == nil {
		t.Fatal("expected error")
	}
	// All attempts consumed.
	if calls := f.provider.accountsCalls.Load(); calls != 3 {
		t.Errorf("FetchAccounts called %d times, want 3", calls)
	}
	conn, _ := f.conns.GetByID(context.Background(), "conn-1")
	if conn.Status != connection.StatusError {
		t.Errorf("connection status = %s, want %s", conn.Status, connection.StatusError)
	}
}

func TestSync_RetriesTransientFailure(t *testing.T) {
	f := newFixture(testConnection(connection.StatusLinked))
	var attempts atomic.Int64
	f.provider.fetchAccountsFunc = func(ctx context.Context, token string) ([]provider.RawAccount, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("flaky upstream")
		}
		return []provider.RawAccount{{ProviderAccountID: "ext-1", Name: "Checking", Currency: "USD"}}, nil
	}

	run, err := f.orch.Sync(context.Background(), "conn-1", TriggerManual, false)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if run.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %s, want %s", run.Outcome, OutcomeSuccess)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestSync_ManualThrottle(t *testing.T) {
	conn := testConnection(connection.StatusSynced)
	recent := time.Now().Add(-1 * time.Minute)
	conn.LastSyncedAt = &recent
	f := newFixture(conn)
	ctx := context.Background()

	if _, err := f.orch.Sync(ctx, "conn-1", TriggerManual, false); !errors.Is(err, ErrRecentlySynced) {
		t.Errorf("non-forced manual sync error = %v, want ErrRecentlySynced", err)
	}
	if _, err := f.orch.Sync(ctx, "conn-1", TriggerManual, true); err != nil {
		t.Errorf("forced manual sync error = %v", err)
	}
	// Webhook and scheduled triggers are never throttled.
	f2 := newFixture(conn)
	if _, err := f2.orch.Sync(ctx, "conn-1", TriggerWebhook, false); err != nil {
		t.Errorf("webhook sync error = %v", err)
	}
}

func TestSync_RejectsDisconnected(t *testing.T) {
	f := newFixture(testConnection(connection.StatusDisconnected))
	if _, err := f.orch.Sync(context.Background(), "conn-1", TriggerScheduled, false); !errors.Is(err, ErrConnectionDisconnected) {
		t.Errorf("error = %v, want ErrConnectionDisconnected", err)
	}
	if f.provider.accountsCalls.Load() != 0 {
		t.Error("provider was called for a disconnected connection")
	}
}

func TestSync_RejectsAlreadySyncing(t *testing.T) {
	// A row stuck in syncing belongs to another replica (or a crashed
	// one); starting a second run beside it is never safe.
	f := newFixture(testConnection(connection.StatusSyncing))
	if _, err := f.orch.Sync(context.Background(), "conn-1", TriggerManual, false); !errors.Is(err, connection.ErrNotSyncable) {
		t.Errorf("error = %v, want ErrNotSyncable", err)
	}
	if f.provider.accountsCalls.Load() != 0 {
		t.Error("provider was called for a connection already syncing")
	}
}

func TestSync_RejectsReauthRequired(t *testing.T) {
	f := newFixture(testConnection(connection.StatusReauthRequired))
	if _, err := f.orch.Sync(context.Background(), "conn-1", TriggerScheduled, false); !errors.Is(err, ErrReauthRequired) {
		t.Errorf("error = %v, want ErrReauthRequired", err)
	}
}

func TestSync_ExpiredCredentialMarksReauth(t *testing.T) {
	f := newFixture(testConnection(connection.StatusLinked))
	f.orch.tokens = tokenSourceFunc(func(ctx context.Context, connectionID string) (string, error) {
		return "", credential.ErrCredentialExpired
	})

	run, err := f.orch.Sync(context.Background(), "conn-1", TriggerScheduled, false)
	if !errors.Is(err, ErrReauthRequired) {
		t.Errorf("error = %v, want ErrReauthRequired", err)
	}
	if run == nil || run.Outcome != OutcomeError {
		t.Error("expected an error run to be recorded")
	}
	conn, _ := f.conns.GetByID(context.Background(), "conn-1")
	if conn.Status != connection.StatusReauthRequired {
		t.Errorf("connection status = %s, want %s", conn.Status, connection.StatusReauthRequired)
	}
}

func TestSync_JoinsInFlightRun(t *testing.T) {
	f := newFixture(testConnection(connection.StatusLinked))
	release := make(chan struct{})
	f.provider.fetchAccountsFunc = func(ctx context.Context, token string) ([]provider.RawAccount, error) {
		<-release
		return []provider.RawAccount{{ProviderAccountID: "ext-1", Name: "Checking", Currency: "USD"}}, nil
	}

	const callers = 4
	runs := make([]*Run, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runs[i], errs[i] = f.orch.Sync(context.Background(), "conn-1", TriggerWebhook, false)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls := f.provider.accountsCalls.Load(); calls != 1 {
		t.Errorf("FetchAccounts called %d times, want 1", calls)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if runs[i].ID != runs[0].ID {
			t.Errorf("caller %d got run %s, want shared run %s", i, runs[i].ID, runs[0].ID)
		}
	}
}

func TestSync_DisconnectMidSyncDiscardsResults(t *testing.T) {
	f := newFixture(testConnection(connection.StatusLinked))
	f.provider.fetchAccountsFunc = func(ctx context.Context, token string) ([]provider.RawAccount, error) {
		// The user disconnects while the fetch is in flight.
		if err := f.conns.Disconnect(ctx, "conn-1", time.Now()); err != nil {
			t.Errorf("disconnect failed: %v", err)
		}
		return []provider.RawAccount{{ProviderAccountID: "ext-1", Name: "Checking", Currency: "USD"}}, nil
	}

	_, err := f.orch.Sync(context.Background(), "conn-1", TriggerScheduled, false)
	if !errors.Is(err, ErrConnectionDisconnected) {
		t.Errorf("error = %v, want ErrConnectionDisconnected", err)
	}
	if f.txns.count() != 0 {
		t.Error("transactions were written for a disconnected connection")
	}
	if accs, _ := f.accounts.ListByConnectionID(context.Background(), "conn-1"); len(accs) != 0 {
		t.Errorf("%d accounts were written for a disconnected connection", len(accs))
	}
	conn, _ := f.conns.GetByID(context.Background(), "conn-1")
	if conn.Status != connection.StatusDisconnected {
		t.Errorf("connection status = %s, want %s", conn.Status, connection.StatusDisconnected)
	}
}

func TestSync_BalancesEnrichAccounts(t *testing.T) {
	f := newFixture(testConnection(connection.StatusLinked))
	f.provider.fetchBalancesFunc = func(ctx context.Context, token string) ([]provider.BalanceSnapshot, error) {
		return []provider.BalanceSnapshot{
			{ProviderAccountID: "ext-checking", Current: decimal.NewFromInt(250), Available: decimal.NewFromInt(240)},
		}, nil
	}

	if _, err := f.orch.Sync(context.Background(), "conn-1", TriggerManual, false); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	acc, err := f.accounts.GetByID(context.Background(), "acc-ext-checking")
	if err != nil {
		t.Fatalf("account not persisted: %v", err)
	}
	if !acc.CurrentBalance.Equal(decimal.NewFromInt(250)) {
		t.Errorf("CurrentBalance = %s, want 250", acc.CurrentBalance)
	}
	if !acc.AvailableBalance.Equal(decimal.NewFromInt(240)) {
		t.Errorf("AvailableBalance = %s, want 240", acc.AvailableBalance)
	}
}

func TestSync_UnknownConnection(t *testing.T) {
	f := newFixture(testConnection(connection.StatusLinked))
	if _, err := f.orch.Sync(context.Background(), "nope", TriggerManual, false); !errors.Is(err, connection.ErrConnectionNotFound) {
		t.Errorf("error = %v, want ErrConnectionNotFound", err)
	}
}
