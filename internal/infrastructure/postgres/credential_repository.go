package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"moneta/internal/domain/credential"
	"moneta/internal/infrastructure/crypto"
)

// CredentialRepository stores provider tokens encrypted at rest with
// AES-256-GCM. Plaintext tokens never touch the database.
type CredentialRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

var _ credential.Repository = (*CredentialRepository)(nil)

func NewCredentialRepository(db *DB, encryptor *crypto.Encryptor) *CredentialRepository {
	return &CredentialRepository{db: db, encryptor: encryptor}
}

func (r *CredentialRepository) Upsert(ctx context.Context, cred credential.Credential) error {
	accessToken, err := r.encryptor.Encrypt(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refreshToken, err := r.encryptor.Encrypt(cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	query := `
		INSERT INTO bank_credentials (connection_id, access_token, refresh_token, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (connection_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, cred.ConnectionID, accessToken, refreshToken, cred.ExpiresAt); err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) GetByConnectionID(ctx context.Context, connectionID string) (*credential.Credential, error) {
	query := `
		SELECT connection_id, access_token, refresh_token, expires_at, created_at, updated_at
		FROM bank_credentials
		WHERE connection_id = $1
	`

	var cred credential.Credential
	var accessToken, refreshToken string
	var expiresAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, connectionID).Scan(
		&cred.ConnectionID, &accessToken, &refreshToken, &expiresAt,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, credential.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	// A cleared credential row has empty tokens; treat it as absent.
	if accessToken == "" {
		return nil, credential.ErrCredentialNotFound
	}

	if cred.AccessToken, err = r.encryptor.Decrypt(accessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if cred.RefreshToken, err = r.encryptor.Decrypt(refreshToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	if expiresAt.Valid {
		cred.ExpiresAt = &expiresAt.Time
	}
	return &cred, nil
}

// Clear blanks the token columns in place rather than deleting the row, so
// the credential's audit timestamps survive a disconnect.
func (r *CredentialRepository) Clear(ctx context.Context, connectionID string) error {
	query := `
		UPDATE bank_credentials
		SET access_token = '', refresh_token = '', expires_at = NULL, updated_at = NOW()
		WHERE connection_id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, connectionID); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}
