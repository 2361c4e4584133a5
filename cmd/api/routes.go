package main

import (
	"log"
	"net/http"

	httphandlers "moneta/internal/interfaces/http"
	"moneta/internal/shared/config"
	"moneta/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes with their middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Provider webhooks are server-to-server and authenticate by payload
	// signature, not by JWT
	mux.HandleFunc("/api/bank/webhooks/{providerId}", deps.WebhookHandler.HandleWebhook)

	// Protected routes - wrap with auth middleware
	authMiddleware := middleware.Auth(deps.JWT)

	mux.Handle("/api/bank/providers", authMiddleware(http.HandlerFunc(deps.ProviderHandler.HandleListProviders)))
	mux.Handle("/api/bank/link-token/{providerId}", authMiddleware(http.HandlerFunc(deps.ConnectionHandler.HandleLinkToken)))
	mux.Handle("/api/bank/connect/{providerId}", authMiddleware(http.HandlerFunc(deps.ConnectionHandler.HandleConnect)))
	mux.Handle("/api/bank/accounts", authMiddleware(http.HandlerFunc(deps.ConnectionHandler.HandleListAccounts)))
	mux.Handle("/api/bank/accounts/{accountId}", authMiddleware(http.HandlerFunc(deps.ConnectionHandler.HandleHideAccount)))
	mux.Handle("/api/bank/connections/{connectionId}", authMiddleware(http.HandlerFunc(deps.ConnectionHandler.HandleConnectionByID)))
	mux.Handle("/api/bank/connections/{connectionId}/runs", authMiddleware(http.HandlerFunc(deps.SyncHandler.HandleSyncRuns)))
	mux.Handle("/api/bank/sync/{connectionId}", authMiddleware(http.HandlerFunc(deps.SyncHandler.HandleSync)))
	mux.Handle("/api/bank/sync-all", authMiddleware(http.HandlerFunc(deps.SyncHandler.HandleSyncAll)))

	// Apply global middleware
	handler := middleware.Telemetry(middleware.Logging(middleware.CORS(cfg.Server.AllowedHosts)(mux)))

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		log.Println("HSTS middleware enabled")
	}

	return handler
}
