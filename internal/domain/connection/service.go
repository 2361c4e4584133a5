package connection

import (
	"context"
	"fmt"
	"log"
	"time"

	"moneta/internal/domain/account"
	"moneta/internal/domain/credential"
	"moneta/internal/domain/provider"
)

// Service is the connection lifecycle manager. It mediates link initiation
// and completion, owns status transitions, and exposes disconnect. Sync
// execution lives in the sync orchestrator; this service only transitions
// state around it.
type Service struct {
	registry    *provider.Registry
	connections Repository
	credentials credential.Repository
	accounts    account.Repository
	now         func() time.Time
}

// NewService creates a lifecycle manager.
func NewService(registry *provider.Registry, connections Repository, credentials credential.Repository, accounts account.Repository) *Service {
	return &Service{
		registry:    registry,
		connections: connections,
		credentials: credentials,
		accounts:    accounts,
		now:         time.Now,
	}
}

// StartLink begins a link flow with the chosen provider. Deliberately
// persists nothing: abandoned flows must leave zero rows behind. Region
// gating happens in the registry before any provider call.
func (s *Service) StartLink(ctx context.Context, userID, region, providerID, redirectTarget string) (*provider.LinkInitiation, error) {
	return s.registry.LinkInitiationFor(ctx, providerID, userID, region, redirectTarget)
}

// CompleteLink exchanges the one-time code for durable credentials, stores
// them, and creates the Connection row in state linked. This is the only
// path that creates connections.
func (s *Service) CompleteLink(ctx context.Context, userID, providerID, oneTimeCode string, metadata provider.LinkMetadata) (*Connection, error) {
	p, err := s.registry.Get(providerID)
	if err != nil {
		return nil, err
	}

	result, err := p.CompleteLink(ctx, userID, oneTimeCode, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to complete %s link: %w", p.Name(), err)
	}

	institutionName := metadata.InstitutionName
	if institutionName == "" {
		institutionName = p.Name()
	}

	conn, err := s.connections.Create(ctx, CreateParams{
		UserID:          userID,
		ProviderID:      providerID,
		ExternalItemID:  result.ExternalItemID,
		InstitutionID:   metadata.InstitutionID,
		InstitutionName: institutionName,
		InstitutionLogo: metadata.InstitutionLogo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	if err := s.credentials.Upsert(ctx, credential.Credential{
		ConnectionID: conn.ID,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}

	log.Printf("User %s: linked %s via %s (connection %s)", userID, institutionName, providerID, conn.ID)
	return conn, nil
}

// Disconnect revokes provider access best-effort, clears the credential and
// marks the connection disconnected. Local disconnect always succeeds even
// when the provider call fails, so a user is never stuck with a connection
// they cannot remove.
func (s *Service) Disconnect(ctx context.Context, userID, connectionID string) error {
	conn, err := s.Get(ctx, userID, connectionID)
	if err != nil {
		return err
	}

	if p, perr := s.registry.Get(conn.ProviderID); perr == nil {
		if cred, cerr := s.credentials.GetByConnectionID(ctx, connectionID); cerr == nil {
			if rerr := p.Revoke(ctx, cred.AccessToken); rerr != nil {
				log.Printf("Connection %s: failed to revoke %s access: %v", connectionID, p.Name(), rerr)
			}
		}
	}

	if err := s.credentials.Clear(ctx, connectionID); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	if err := s.connections.Disconnect(ctx, connectionID, s.now()); err != nil {
		return fmt.Errorf("failed to disconnect connection: %w", err)
	}

	log.Printf("User %s: disconnected %s (connection %s)", userID, conn.InstitutionName, connectionID)
	return nil
}

// Get retrieves a connection and verifies ownership.
func (s *Service) Get(ctx context.Context, userID, connectionID string) (*Connection, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.UserID != userID {
		return nil, ErrForbidden
	}
	return conn, nil
}

// List retrieves all of a user's active connections.
func (s *Service) List(ctx context.Context, userID string) ([]*Connection, error) {
	return s.connections.ListByUserID(ctx, userID)
}

// ConnectionWithAccounts pairs a connection with its current accounts for
// API listings.
type ConnectionWithAccounts struct {
	Connection
	Accounts []*account.ExternalAccount `json:"accounts"`
}

// ListWithAccounts retrieves all of a user's connections with their nested
// external accounts.
func (s *Service) ListWithAccounts(ctx context.Context, userID string) ([]*ConnectionWithAccounts, error) {
	conns, err := s.connections.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	result := make([]*ConnectionWithAccounts, 0, len(conns))
	for _, conn := range conns {
		accounts, err := s.accounts.ListByConnectionID(ctx, conn.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list accounts for connection %s: %w", conn.ID, err)
		}
		result = append(result, &ConnectionWithAccounts{Connection: *conn, Accounts: accounts})
	}
	return result, nil
}

// HideAccount hides a single external account after verifying the owning
// connection belongs to the user.
func (s *Service) HideAccount(ctx context.Context, userID, accountID string) error {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.UserID != userID {
		return ErrForbidden
	}
	return s.accounts.Hide(ctx, accountID)
}

// MarkReauthRequired flags a connection as needing user re-authorization.
// Called by the sync orchestrator when a credential refresh fails
// permanently.
func (s *Service) MarkReauthRequired(ctx context.Context, connectionID string, cause error) error {
	msg := "reconnect required"
	if cause != nil {
		msg = cause.Error()
	}
	return s.connections.UpdateStatus(ctx, connectionID, StatusReauthRequired, &msg)
}

// ProviderFor resolves the provider owning a connection. Satisfies
// credential.ProviderResolver so the vault can refresh tokens.
func (s *Service) ProviderFor(ctx context.Context, connectionID string) (provider.Provider, error) {
	conn, err := s.connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return s.registry.Get(conn.ProviderID)
}
