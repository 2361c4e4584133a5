package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"moneta/internal/domain/account"
	"moneta/internal/domain/connection"
	"moneta/internal/domain/provider"
	"moneta/internal/shared/middleware"
)

// ConnectionHandler serves the bank link and connection lifecycle routes.
type ConnectionHandler struct {
	connections *connection.Service
}

// NewConnectionHandler creates a new connection lifecycle handler.
func NewConnectionHandler(connections *connection.Service) *ConnectionHandler {
	return &ConnectionHandler{connections: connections}
}

// HTTP request/response types (transport layer concerns)
type LinkTokenRequest struct {
	RedirectTarget string `json:"redirectTarget"`
}

type ConnectRequest struct {
	OneTimeCode string                `json:"oneTimeCode"`
	Metadata    provider.LinkMetadata `json:"metadata"`
}

// HandleLinkToken starts a link flow with the provider in the path.
// Nothing is persisted until the flow completes.
func (h *ConnectionHandler) HandleLinkToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	region, _ := r.Context().Value(middleware.RegionKey).(string)

	providerID := r.PathValue("providerId")
	if providerID == "" {
		http.Error(w, "Provider ID is required", http.StatusBadRequest)
		return
	}

	// Body is optional; an empty redirect target is fine for widget flows.
	var req LinkTokenRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	initiation, err := h.connections.StartLink(r.Context(), userID, region, providerID, req.RedirectTarget)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrUnknownProvider):
			http.Error(w, "Unknown provider", http.StatusNotFound)
		case errors.Is(err, provider.ErrProviderUnavailable):
			http.Error(w, "Provider not available", http.StatusNotFound)
		case errors.Is(err, provider.ErrUnsupportedRegion):
			http.Error(w, "Provider not supported in your region", http.StatusBadRequest)
		default:
			log.Printf("Error starting %s link for user %s: %v", providerID, userID, err)
			http.Error(w, "Failed to start link", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(initiation)
}

// HandleConnect exchanges the one-time code from a completed link flow and
// creates the connection.
func (h *ConnectionHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	providerID := r.PathValue("providerId")
	if providerID == "" {
		http.Error(w, "Provider ID is required", http.StatusBadRequest)
		return
	}

	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OneTimeCode == "" {
		http.Error(w, "oneTimeCode is required", http.StatusBadRequest)
		return
	}

	conn, err := h.connections.CompleteLink(r.Context(), userID, providerID, req.OneTimeCode, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrUnknownProvider):
			http.Error(w, "Unknown provider", http.StatusNotFound)
		case errors.Is(err, provider.ErrProviderExchange):
			http.Error(w, "Token exchange failed", http.StatusBadGateway)
		default:
			log.Printf("Error completing %s link for user %s: %v", providerID, userID, err)
			http.Error(w, "Failed to complete link", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conn)
}

// HandleListAccounts returns the user's connections with their nested
// external accounts.
func (h *ConnectionHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conns, err := h.connections.ListWithAccounts(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing connections for user %s: %v", userID, err)
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conns)
}

// HandleConnectionByID handles DELETE on a specific connection.
func (h *ConnectionHandler) HandleConnectionByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	connectionID := r.PathValue("connectionId")
	if connectionID == "" {
		http.Error(w, "Connection ID is required", http.StatusBadRequest)
		return
	}

	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := h.connections.Disconnect(r.Context(), userID, connectionID)
	if err != nil {
		switch {
		case errors.Is(err, connection.ErrConnectionNotFound):
			http.Error(w, "Connection not found", http.StatusNotFound)
		case errors.Is(err, connection.ErrForbidden):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			log.Printf("Error disconnecting connection %s: %v", connectionID, err)
			http.Error(w, "Failed to disconnect", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleHideAccount hides one external account from listings. The account
// keeps syncing; hiding is a display preference, not a disconnect.
func (h *ConnectionHandler) HandleHideAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	accountID := r.PathValue("accountId")
	if accountID == "" {
		http.Error(w, "Account ID is required", http.StatusBadRequest)
		return
	}

	err := h.connections.HideAccount(r.Context(), userID, accountID)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrAccountNotFound):
			http.Error(w, "Account not found", http.StatusNotFound)
		case errors.Is(err, connection.ErrForbidden):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			log.Printf("Error hiding account %s: %v", accountID, err)
			http.Error(w, "Failed to hide account", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
