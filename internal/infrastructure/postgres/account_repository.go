package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"moneta/internal/domain/account"
)

type AccountRepository struct {
	db *DB
}

var _ account.Repository = (*AccountRepository)(nil)

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, connection_id, user_id, provider_account_id, name, account_type,
	       subtype, mask, current_balance, available_balance, currency,
	       last_synced_at, last_error, hidden, created_at, updated_at`

func (r *AccountRepository) Upsert(ctx context.Context, params account.UpsertParams) (*account.ExternalAccount, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO external_accounts (id, connection_id, user_id, provider_account_id, name,
		                               account_type, subtype, mask, current_balance,
		                               available_balance, currency, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (connection_id, provider_account_id) DO UPDATE
		SET name = EXCLUDED.name,
		    account_type = EXCLUDED.account_type,
		    subtype = EXCLUDED.subtype,
		    mask = EXCLUDED.mask,
		    current_balance = EXCLUDED.current_balance,
		    available_balance = EXCLUDED.available_balance,
		    currency = EXCLUDED.currency,
		    last_synced_at = EXCLUDED.last_synced_at,
		    updated_at = NOW()
		RETURNING ` + accountColumns

	return r.scanAccount(r.db.QueryRowContext(
		ctx, query,
		uuid.NewString(), params.ConnectionID, params.UserID, params.ProviderAccountID,
		params.Name, params.AccountType, params.Subtype, params.Mask,
		params.CurrentBalance, params.AvailableBalance, params.Currency, params.SyncedAt,
	))
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.ExternalAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM external_accounts WHERE id = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) ListByConnectionID(ctx context.Context, connectionID string) ([]*account.ExternalAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM external_accounts
		WHERE connection_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()
	return r.collectAccounts(rows)
}

func (r *AccountRepository) ListByUserID(ctx context.Context, userID string) ([]*account.ExternalAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM external_accounts
		WHERE user_id = $1 AND hidden = FALSE
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()
	return r.collectAccounts(rows)
}

func (r *AccountRepository) SetLastError(ctx context.Context, id string, message *string) error {
	query := `UPDATE external_accounts SET last_error = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, message)
	if err != nil {
		return fmt.Errorf("failed to set account error: %w", err)
	}
	return requireRow(result, account.ErrAccountNotFound)
}

func (r *AccountRepository) Hide(ctx context.Context, id string) error {
	query := `UPDATE external_accounts SET hidden = TRUE, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to hide account: %w", err)
	}
	return requireRow(result, account.ErrAccountNotFound)
}

func (r *AccountRepository) scanAccount(row rowScanner) (*account.ExternalAccount, error) {
	var acc account.ExternalAccount
	var subtype, mask sql.NullString
	var lastSyncedAt sql.NullTime
	var lastError sql.NullString

	err := row.Scan(
		&acc.ID, &acc.ConnectionID, &acc.UserID, &acc.ProviderAccountID,
		&acc.Name, &acc.AccountType, &subtype, &mask,
		&acc.CurrentBalance, &acc.AvailableBalance, &acc.Currency,
		&lastSyncedAt, &lastError, &acc.Hidden, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	acc.Subtype = subtype.String
	acc.Mask = mask.String
	if lastSyncedAt.Valid {
		acc.LastSyncedAt = &lastSyncedAt.Time
	}
	if lastError.Valid {
		acc.LastError = &lastError.String
	}
	return &acc, nil
}

func (r *AccountRepository) collectAccounts(rows *sql.Rows) ([]*account.ExternalAccount, error) {
	var accounts []*account.ExternalAccount
	for rows.Next() {
		acc, err := r.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}
