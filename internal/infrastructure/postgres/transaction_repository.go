package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"moneta/internal/domain/transaction"
)

type TransactionRepository struct {
	db *DB
}

var _ transaction.Repository = (*TransactionRepository)(nil)

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, user_id, connection_id, account_id, dedupe_key,
	       provider_transaction_id, amount, is_expense, transaction_date, description,
	       merchant, category, pending, currency, created_at, updated_at`

// Upsert inserts or updates a transaction keyed by (user_id, dedupe_key).
// xmax = 0 distinguishes a fresh insert from a conflict update.
func (r *TransactionRepository) Upsert(ctx context.Context, params transaction.UpsertParams) (bool, error) {
	query := `
		INSERT INTO bank_transactions (id, user_id, connection_id, account_id, dedupe_key,
		                               provider_transaction_id, amount, is_expense,
		                               transaction_date, description, merchant, category,
		                               pending, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id, dedupe_key) DO UPDATE
		SET amount = EXCLUDED.amount,
		    is_expense = EXCLUDED.is_expense,
		    transaction_date = EXCLUDED.transaction_date,
		    description = EXCLUDED.description,
		    merchant = EXCLUDED.merchant,
		    category = EXCLUDED.category,
		    pending = EXCLUDED.pending,
		    currency = EXCLUDED.currency,
		    updated_at = NOW()
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.db.QueryRowContext(
		ctx, query,
		uuid.NewString(), params.UserID, params.ConnectionID, params.AccountID,
		params.DedupeKey, params.ProviderTransactionID, params.Amount, params.IsExpense,
		params.Date, params.Description, params.Merchant, params.Category,
		params.Pending, params.Currency,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return inserted, nil
}

func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.NormalizedTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM bank_transactions
		WHERE account_id = $1
		ORDER BY transaction_date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return r.collectTransactions(rows)
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID string, from, to time.Time) ([]*transaction.NormalizedTransaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM bank_transactions
		WHERE user_id = $1 AND transaction_date >= $2 AND transaction_date <= $3
		ORDER BY transaction_date DESC, created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return r.collectTransactions(rows)
}

func (r *TransactionRepository) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank_transactions WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (r *TransactionRepository) collectTransactions(rows *sql.Rows) ([]*transaction.NormalizedTransaction, error) {
	var txns []*transaction.NormalizedTransaction
	for rows.Next() {
		var txn transaction.NormalizedTransaction
		var providerTxnID, merchant sql.NullString

		err := rows.Scan(
			&txn.ID, &txn.UserID, &txn.ConnectionID, &txn.AccountID, &txn.DedupeKey,
			&providerTxnID, &txn.Amount, &txn.IsExpense, &txn.Date, &txn.Description,
			&merchant, &txn.Category, &txn.Pending, &txn.Currency,
			&txn.CreatedAt, &txn.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		txn.ProviderTransactionID = providerTxnID.String
		txn.Merchant = merchant.String
		txns = append(txns, &txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txns, nil
}
