package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"moneta/internal/domain/sync"
)

// SyncRunRepository persists the append-only sync audit log.
type SyncRunRepository struct {
	db *DB
}

var _ sync.RunRepository = (*SyncRunRepository)(nil)

func NewSyncRunRepository(db *DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

func (r *SyncRunRepository) Insert(ctx context.Context, run *sync.Run) error {
	query := `
		INSERT INTO sync_runs (id, connection_id, trigger_kind, started_at, finished_at,
		                       outcome, accounts_synced, accounts_failed,
		                       transactions_upserted, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.ID, run.ConnectionID, run.Trigger, run.StartedAt, run.FinishedAt,
		run.Outcome, run.AccountsSynced, run.AccountsFailed,
		run.TransactionsUpserted, nullIfEmpty(run.ErrorDetail),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

func (r *SyncRunRepository) ListByConnectionID(ctx context.Context, connectionID string, limit int) ([]*sync.Run, error) {
	query := `
		SELECT id, connection_id, trigger_kind, started_at, finished_at,
		       outcome, accounts_synced, accounts_failed, transactions_upserted, error_detail
		FROM sync_runs
		WHERE connection_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*sync.Run
	for rows.Next() {
		var run sync.Run
		var errorDetail sql.NullString

		err := rows.Scan(
			&run.ID, &run.ConnectionID, &run.Trigger, &run.StartedAt, &run.FinishedAt,
			&run.Outcome, &run.AccountsSynced, &run.AccountsFailed,
			&run.TransactionsUpserted, &errorDetail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}

		run.ErrorDetail = errorDetail.String
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync runs: %w", err)
	}
	return runs, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
