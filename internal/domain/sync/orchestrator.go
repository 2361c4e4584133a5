package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"moneta/internal/domain/account"
	"moneta/internal/domain/connection"
	"moneta/internal/domain/credential"
	"moneta/internal/domain/provider"
	"moneta/internal/domain/transaction"
)

// Config holds orchestrator tuning. Zero values fall back to the defaults
// below; all of them are operator-configurable through the config package.
type Config struct {
	// OverlapDays is re-fetched before lastSyncedAt on incremental syncs
	// so late-posting transactions are not missed.
	OverlapDays int
	// InitialWindowDays bounds the first sync's history fetch.
	InitialWindowDays int
	// MaxAttempts bounds retries for transport/timeout errors.
	MaxAttempts int
	// RetryBaseDelay is the first backoff step; it doubles per attempt.
	RetryBaseDelay time.Duration
	// ManualThrottle rejects non-forced manual syncs arriving this soon
	// after the previous successful sync.
	ManualThrottle time.Duration
}

func (c Config) withDefaults() Config {
	if c.OverlapDays <= 0 {
		c.OverlapDays = 5
	}
	if c.InitialWindowDays <= 0 {
		c.InitialWindowDays = 90
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 1 * time.Second
	}
	if c.ManualThrottle <= 0 {
		c.ManualThrottle = 5 * time.Minute
	}
	return c
}

// TokenSource supplies valid access tokens per connection. Satisfied by
// the credential vault.
type TokenSource interface {
	AccessToken(ctx context.Context, connectionID string) (string, error)
}

// Orchestrator executes the fetch→normalize→upsert pipeline for one
// connection at a time. Requests for a connection with a sync already in
// flight join that run's result instead of executing twice.
type Orchestrator struct {
	registry     *provider.Registry
	tokens       TokenSource
	connections  connection.Repository
	accounts     account.Repository
	transactions transaction.Repository
	runs         RunRepository
	normalizer   *Normalizer
	cfg          Config
	group        singleflight.Group
	now          func() time.Time
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(
	registry *provider.Registry,
	tokens TokenSource,
	connections connection.Repository,
	accounts account.Repository,
	transactions transaction.Repository,
	runs RunRepository,
	normalizer *Normalizer,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		registry:     registry,
		tokens:       tokens,
		connections:  connections,
		accounts:     accounts,
		transactions: transactions,
		runs:         runs,
		normalizer:   normalizer,
		cfg:          cfg.withDefaults(),
		now:          time.Now,
	}
}

// Sync runs (or joins) a sync for the connection. force bypasses the
// manual-trigger throttle. The returned Run is recorded even when the
// outcome is error; err is non-nil only when nothing could be synced.
func (o *Orchestrator) Sync(ctx context.Context, connectionID string, trigger Trigger, force bool) (*Run, error) {
	type syncResult struct {
		run *Run
		err error
	}

	v, _, shared := o.group.Do(connectionID, func() (any, error) {
		run, err := o.execute(ctx, connectionID, trigger, force)
		return syncResult{run: run, err: err}, nil
	})
	res := v.(syncResult)
	if shared {
		log.Printf("Connection %s: joined in-flight sync", connectionID)
	}
	return res.run, res.err
}

func (o *Orchestrator) execute(ctx context.Context, connectionID string, trigger Trigger, force bool) (*Run, error) {
	conn, err := o.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if !conn.Status.CanStartSync() {
		switch conn.Status {
		case connection.StatusDisconnected:
			return nil, ErrConnectionDisconnected
		case connection.StatusReauthRequired:
			return nil, ErrReauthRequired
		default:
			// In-process concurrency joins the in-flight run via
			// singleflight, so a row still marked syncing belongs to
			// another replica (or a crashed one); never run beside it.
			return nil, fmt.Errorf("%w: status %s", connection.ErrNotSyncable, conn.Status)
		}
	}

	if trigger == TriggerManual && !force && conn.LastSyncedAt != nil {
		if o.now().Sub(*conn.LastSyncedAt) < o.cfg.ManualThrottle {
			return nil, ErrRecentlySynced
		}
	}

	p, err := o.registry.Get(conn.ProviderID)
	if err != nil {
		return nil, err
	}

	startedAt := o.now()
	run := &Run{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Trigger:      trigger,
		StartedAt:    startedAt,
	}

	token, err := o.tokens.AccessToken(ctx, connectionID)
	if err != nil {
		if errors.Is(err, credential.ErrCredentialExpired) {
			msg := "bank authorization expired, reconnect required"
			if uerr := o.connections.UpdateStatus(ctx, connectionID, connection.StatusReauthRequired, &msg); uerr != nil {
				log.Printf("Connection %s: failed to mark reauth required: %v", connectionID, uerr)
			}
			o.finishRun(ctx, run, OutcomeError, err.Error())
			return run, fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}
		o.finishRun(ctx, run, OutcomeError, err.Error())
		return run, err
	}

	if err := o.connections.UpdateStatus(ctx, connectionID, connection.StatusSyncing, nil); err != nil {
		return nil, fmt.Errorf("failed to mark connection syncing: %w", err)
	}

	windowStart, windowEnd := o.window(conn)
	log.Printf("Connection %s: syncing %s window %s..%s (trigger=%s)",
		connectionID, conn.ProviderID, windowStart.Format(time.DateOnly), windowEnd.Format(time.DateOnly), trigger)

	var rawAccounts []provider.RawAccount
	err = o.withRetry(ctx, "fetch accounts", func() error {
		var ferr error
		rawAccounts, ferr = p.FetchAccounts(ctx, token)
		return ferr
	})
	if err != nil {
		detail := fmt.Sprintf("failed to fetch accounts from %s: %v", p.Name(), err)
		o.recordConnectionError(ctx, connectionID, detail)
		o.finishRun(ctx, run, OutcomeError, detail)
		return run, fmt.Errorf("failed to fetch accounts: %w", err)
	}

	// Balances are a best-effort enrichment; accounts already carry a
	// balance snapshot from the accounts call.
	balances := map[string]provider.BalanceSnapshot{}
	if snaps, berr := p.FetchBalances(ctx, token); berr != nil {
		log.Printf("Connection %s: balance fetch failed, using account snapshots: %v", connectionID, berr)
	} else {
		for _, s := range snaps {
			balances[s.ProviderAccountID] = s
		}
	}

	// The user may have disconnected while we were fetching. Discard
	// everything rather than writing to a dead connection.
	if o.disconnected(ctx, connectionID) {
		return nil, ErrConnectionDisconnected
	}

	synced, failed := 0, 0
	for _, raw := range rawAccounts {
		if snap, ok := balances[raw.ProviderAccountID]; ok {
			raw.CurrentBalance = snap.Current
			raw.AvailableBalance = snap.Available
			if snap.Currency != "" {
				raw.Currency = snap.Currency
			}
		}

		upserted, aerr := o.syncAccount(ctx, conn, p, token, raw, windowStart, windowEnd)
		run.TransactionsUpserted += upserted
		if aerr != nil {
			failed++
			log.Printf("Connection %s: account %s failed: %v", connectionID, raw.ProviderAccountID, aerr)
			continue
		}
		synced++
	}
	run.AccountsSynced = synced
	run.AccountsFailed = failed

	if o.disconnected(ctx, connectionID) {
		return nil, ErrConnectionDisconnected
	}

	switch {
	case synced == 0 && len(rawAccounts) > 0:
		detail := fmt.Sprintf("all %d accounts failed to sync", failed)
		o.recordConnectionError(ctx, connectionID, detail)
		o.finishRun(ctx, run, OutcomeError, detail)
		return run, fmt.Errorf("sync failed for connection %s: %s", connectionID, detail)
	case failed > 0:
		if err := o.connections.MarkSynced(ctx, connectionID, o.now()); err != nil {
			log.Printf("Connection %s: failed to mark synced: %v", connectionID, err)
		}
		o.finishRun(ctx, run, OutcomePartial, fmt.Sprintf("%d of %d accounts failed", failed, len(rawAccounts)))
		return run, nil
	default:
		if err := o.connections.MarkSynced(ctx, connectionID, o.now()); err != nil {
			log.Printf("Connection %s: failed to mark synced: %v", connectionID, err)
		}
		o.finishRun(ctx, run, OutcomeSuccess, "")
		return run, nil
	}
}

// syncAccount upserts one account row and its transactions. Returns the
// number of transactions upserted. A transaction fetch error leaves the
// account's prior data untouched and records the error on the account.
func (o *Orchestrator) syncAccount(
	ctx context.Context,
	conn *connection.Connection,
	p provider.Provider,
	token string,
	raw provider.RawAccount,
	windowStart, windowEnd time.Time,
) (int, error) {
	acc, err := o.accounts.Upsert(ctx, account.UpsertParams{
		ConnectionID:      conn.ID,
		UserID:            conn.UserID,
		ProviderAccountID: raw.ProviderAccountID,
		Name:              raw.Name,
		AccountType:       raw.Type,
		Subtype:           raw.Subtype,
		Mask:              raw.Mask,
		CurrentBalance:    raw.CurrentBalance,
		AvailableBalance:  raw.AvailableBalance,
		Currency:          raw.Currency,
		SyncedAt:          o.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert account: %w", err)
	}

	var rawTxns []provider.RawTransaction
	err = o.withRetry(ctx, "fetch transactions", func() error {
		var ferr error
		rawTxns, ferr = p.FetchTransactions(ctx, token, raw.ProviderAccountID, windowStart, windowEnd)
		return ferr
	})
	if err != nil {
		msg := fmt.Sprintf("transaction fetch failed: %v", err)
		if serr := o.accounts.SetLastError(ctx, acc.ID, &msg); serr != nil {
			log.Printf("Account %s: failed to record error: %v", acc.ID, serr)
		}
		return 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	upserted := 0
	for _, rawTxn := range rawTxns {
		params, nerr := o.normalizer.Normalize(conn.ProviderID, rawTxn)
		if nerr != nil {
			log.Printf("Account %s: skipping malformed transaction: %v", acc.ID, nerr)
			continue
		}
		params.UserID = conn.UserID
		params.ConnectionID = conn.ID
		params.AccountID = acc.ID

		if _, uerr := o.transactions.Upsert(ctx, params); uerr != nil {
			log.Printf("Account %s: failed to upsert transaction %s: %v", acc.ID, params.DedupeKey, uerr)
			continue
		}
		upserted++
	}

	if err := o.accounts.SetLastError(ctx, acc.ID, nil); err != nil {
		log.Printf("Account %s: failed to clear error: %v", acc.ID, err)
	}
	return upserted, nil
}

// window computes the fetch window: incremental syncs re-fetch a few days
// of overlap before the last sync; first syncs are bounded to the initial
// window.
func (o *Orchestrator) window(conn *connection.Connection) (time.Time, time.Time) {
	end := o.now()
	earliest := end.AddDate(0, 0, -o.cfg.InitialWindowDays)
	if conn.LastSyncedAt == nil {
		return earliest, end
	}
	start := conn.LastSyncedAt.AddDate(0, 0, -o.cfg.OverlapDays)
	if start.Before(earliest) {
		start = earliest
	}
	return start, end
}

// withRetry retries transient fetch failures with exponential backoff.
func (o *Orchestrator) withRetry(ctx context.Context, op string, fn func() error) error {
	delay := o.cfg.RetryBaseDelay
	var err error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < o.cfg.MaxAttempts {
			log.Printf("Retrying %s after error (attempt %d/%d): %v", op, attempt, o.cfg.MaxAttempts, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return err
			}
			delay *= 2
		}
	}
	return err
}

func (o *Orchestrator) disconnected(ctx context.Context, connectionID string) bool {
	conn, err := o.connections.GetByID(ctx, connectionID)
	if err != nil {
		log.Printf("Connection %s: status re-check failed: %v", connectionID, err)
		return false
	}
	if conn.Status == connection.StatusDisconnected {
		log.Printf("Connection %s: disconnected mid-sync, discarding results", connectionID)
		return true
	}
	return false
}

func (o *Orchestrator) recordConnectionError(ctx context.Context, connectionID, detail string) {
	if err := o.connections.UpdateStatus(ctx, connectionID, connection.StatusError, &detail); err != nil {
		log.Printf("Connection %s: failed to record error status: %v", connectionID, err)
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, run *Run, outcome Outcome, detail string) {
	run.FinishedAt = o.now()
	run.Outcome = outcome
	run.ErrorDetail = detail
	if err := o.runs.Insert(ctx, run); err != nil {
		log.Printf("Connection %s: failed to record sync run: %v", run.ConnectionID, err)
	}
	log.Printf("Connection %s: sync %s - accounts=%d failed=%d transactions=%d",
		run.ConnectionID, outcome, run.AccountsSynced, run.AccountsFailed, run.TransactionsUpserted)
}
