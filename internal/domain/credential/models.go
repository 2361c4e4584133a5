// Package credential stores and refreshes per-connection provider tokens.
package credential

import (
	"context"
	"errors"
	"time"
)

// ErrCredentialExpired means the access token is expired and the provider
// has no refresh capability (or the refresh was rejected). The connection
// needs a user-driven re-link; callers map this to the ReauthRequired state.
var ErrCredentialExpired = errors.New("credential expired, reconnect required")

// ErrCredentialNotFound means no credential row exists for the connection.
var ErrCredentialNotFound = errors.New("credential not found")

// Credential is the 1:1 token record for a connection. Tokens are encrypted
// at rest; the repository implementation owns the encryption.
type Credential struct {
	ConnectionID string
	AccessToken  string
	RefreshToken string // empty for providers without refresh tokens
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository defines data access for provider credentials.
type Repository interface {
	// Upsert writes the credential for a connection, replacing any
	// previous tokens.
	Upsert(ctx context.Context, cred Credential) error

	// GetByConnectionID retrieves (and decrypts) the credential.
	// Returns ErrCredentialNotFound when absent or cleared.
	GetByConnectionID(ctx context.Context, connectionID string) (*Credential, error)

	// Clear wipes the tokens for a connection. Used on disconnect so no
	// secret material outlives the link.
	Clear(ctx context.Context, connectionID string) error
}
