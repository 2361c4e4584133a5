package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"moneta/internal/domain/connection"
)

type ConnectionRepository struct {
	db *DB
}

var _ connection.Repository = (*ConnectionRepository)(nil)

func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `id, user_id, provider_id, external_item_id, institution_id,
	       institution_name, institution_logo, status, last_synced_at, last_error,
	       created_at, updated_at, disconnected_at`

func (r *ConnectionRepository) Create(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO bank_connections (id, user_id, provider_id, external_item_id,
		                              institution_id, institution_name, institution_logo, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + connectionColumns

	return r.scanConnection(r.db.QueryRowContext(
		ctx, query,
		uuid.NewString(), params.UserID, params.ProviderID, params.ExternalItemID,
		params.InstitutionID, params.InstitutionName, params.InstitutionLogo,
		connection.StatusLinked,
	))
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM bank_connections WHERE id = $1`
	return r.scanConnection(r.db.QueryRowContext(ctx, query, id))
}

func (r *ConnectionRepository) GetByExternalItemID(ctx context.Context, providerID, externalItemID string) (*connection.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM bank_connections
		WHERE provider_id = $1 AND external_item_id = $2 AND status != $3
	`
	return r.scanConnection(r.db.QueryRowContext(ctx, query, providerID, externalItemID, connection.StatusDisconnected))
}

func (r *ConnectionRepository) ListByUserID(ctx context.Context, userID string) ([]*connection.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM bank_connections
		WHERE user_id = $1 AND status != $2
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID, connection.StatusDisconnected)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()
	return r.collectConnections(rows)
}

func (r *ConnectionRepository) ListSyncable(ctx context.Context) ([]*connection.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM bank_connections
		WHERE status IN ($1, $2, $3)
		ORDER BY last_synced_at ASC NULLS FIRST
	`

	rows, err := r.db.QueryContext(ctx, query, connection.StatusLinked, connection.StatusSynced, connection.StatusError)
	if err != nil {
		return nil, fmt.Errorf("failed to list syncable connections: %w", err)
	}
	defer rows.Close()
	return r.collectConnections(rows)
}

func (r *ConnectionRepository) UpdateStatus(ctx context.Context, id string, status connection.Status, lastError *string) error {
	query := `
		UPDATE bank_connections
		SET status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, status, lastError)
	if err != nil {
		return fmt.Errorf("failed to update connection status: %w", err)
	}
	return requireRow(result, connection.ErrConnectionNotFound)
}

func (r *ConnectionRepository) MarkSynced(ctx context.Context, id string, syncedAt time.Time) error {
	query := `
		UPDATE bank_connections
		SET status = $2, last_synced_at = $3, last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, connection.StatusSynced, syncedAt)
	if err != nil {
		return fmt.Errorf("failed to mark connection synced: %w", err)
	}
	return requireRow(result, connection.ErrConnectionNotFound)
}

func (r *ConnectionRepository) Disconnect(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE bank_connections
		SET status = $2, disconnected_at = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, connection.StatusDisconnected, at)
	if err != nil {
		return fmt.Errorf("failed to disconnect connection: %w", err)
	}
	return requireRow(result, connection.ErrConnectionNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ConnectionRepository) scanConnection(row rowScanner) (*connection.Connection, error) {
	var conn connection.Connection
	var institutionID, institutionLogo sql.NullString
	var lastSyncedAt, disconnectedAt sql.NullTime
	var lastError sql.NullString

	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.ProviderID, &conn.ExternalItemID,
		&institutionID, &conn.InstitutionName, &institutionLogo, &conn.Status,
		&lastSyncedAt, &lastError, &conn.CreatedAt, &conn.UpdatedAt, &disconnectedAt,
	)
	if err == sql.ErrNoRows {
		return nil, connection.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan connection: %w", err)
	}

	conn.InstitutionID = institutionID.String
	conn.InstitutionLogo = institutionLogo.String
	if lastSyncedAt.Valid {
		conn.LastSyncedAt = &lastSyncedAt.Time
	}
	if lastError.Valid {
		conn.LastError = &lastError.String
	}
	if disconnectedAt.Valid {
		conn.DisconnectedAt = &disconnectedAt.Time
	}
	return &conn, nil
}

func (r *ConnectionRepository) collectConnections(rows *sql.Rows) ([]*connection.Connection, error) {
	var conns []*connection.Connection
	for rows.Next() {
		conn, err := r.scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connections: %w", err)
	}
	return conns, nil
}

// requireRow converts a zero-row update into notFound.
func requireRow(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
