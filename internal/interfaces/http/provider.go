package http

import (
	"encoding/json"
	"net/http"

	"moneta/internal/domain/provider"
	"moneta/internal/shared/middleware"
)

// ProviderHandler exposes the provider catalog.
type ProviderHandler struct {
	registry *provider.Registry
}

// NewProviderHandler creates a new provider catalog handler.
func NewProviderHandler(registry *provider.Registry) *ProviderHandler {
	return &ProviderHandler{registry: registry}
}

// HandleListProviders returns every available aggregator annotated with
// whether it operates in the caller's region.
func (h *ProviderHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	region, _ := r.Context().Value(middleware.RegionKey).(string)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.registry.ListForRegion(region))
}
