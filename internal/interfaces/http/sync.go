package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"moneta/internal/domain/connection"
	"moneta/internal/domain/sync"
	"moneta/internal/shared/middleware"
)

// SyncRunner is the orchestrator capability the HTTP layer needs.
type SyncRunner interface {
	Sync(ctx context.Context, connectionID string, trigger sync.Trigger, force bool) (*sync.Run, error)
}

// SyncHandler serves manual sync triggers and run history.
type SyncHandler struct {
	syncs       SyncRunner
	connections *connection.Service
	runs        sync.RunRepository
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(syncs SyncRunner, connections *connection.Service, runs sync.RunRepository) *SyncHandler {
	return &SyncHandler{syncs: syncs, connections: connections, runs: runs}
}

// SyncAllResponse summarizes a sync-all sweep over the user's connections.
type SyncAllResponse struct {
	Requested int         `json:"requested"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Runs      []*sync.Run `json:"runs"`
}

// HandleSync triggers a sync for one connection. Pass force=true to bypass
// the manual throttle.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

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

	// Ownership check before the orchestrator touches anything.
	if _, err := h.connections.Get(r.Context(), userID, connectionID); err != nil {
		switch {
		case errors.Is(err, connection.ErrConnectionNotFound):
			http.Error(w, "Connection not found", http.StatusNotFound)
		case errors.Is(err, connection.ErrForbidden):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			log.Printf("Error loading connection %s: %v", connectionID, err)
			http.Error(w, "Failed to load connection", http.StatusInternalServerError)
		}
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	run, err := h.syncs.Sync(r.Context(), connectionID, sync.TriggerManual, force)
	if err != nil {
		switch {
		case errors.Is(err, sync.ErrRecentlySynced):
			http.Error(w, "Connection synced recently, retry later or pass force=true", http.StatusTooManyRequests)
		case errors.Is(err, sync.ErrReauthRequired):
			http.Error(w, "Connection requires re-authorization", http.StatusConflict)
		case errors.Is(err, sync.ErrConnectionDisconnected):
			http.Error(w, "Connection is disconnected", http.StatusConflict)
		case errors.Is(err, connection.ErrNotSyncable):
			http.Error(w, "A sync is already in progress, retry later", http.StatusConflict)
		default:
			log.Printf("Error syncing connection %s: %v", connectionID, err)
			// The run, when present, carries the failure detail.
			if run != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadGateway)
				json.NewEncoder(w).Encode(run)
				return
			}
			http.Error(w, "Sync failed", http.StatusBadGateway)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// HandleSyncAll triggers a sync for every one of the user's connections.
// Individual failures do not abort the sweep.
func (h *SyncHandler) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conns, err := h.connections.List(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing connections for user %s: %v", userID, err)
		http.Error(w, "Failed to list connections", http.StatusInternalServerError)
		return
	}

	resp := SyncAllResponse{Requested: len(conns), Runs: make([]*sync.Run, 0, len(conns))}
	for _, conn := range conns {
		run, err := h.syncs.Sync(r.Context(), conn.ID, sync.TriggerManual, false)
		if err != nil {
			resp.Failed++
			log.Printf("Sync-all: connection %s failed: %v", conn.ID, err)
		} else {
			resp.Succeeded++
		}
		if run != nil {
			resp.Runs = append(resp.Runs, run)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleSyncRuns returns recent sync runs for one connection, newest first.
func (h *SyncHandler) HandleSyncRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

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

	if _, err := h.connections.Get(r.Context(), userID, connectionID); err != nil {
		switch {
		case errors.Is(err, connection.ErrConnectionNotFound):
			http.Error(w, "Connection not found", http.StatusNotFound)
		case errors.Is(err, connection.ErrForbidden):
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			log.Printf("Error loading connection %s: %v", connectionID, err)
			http.Error(w, "Failed to load connection", http.StatusInternalServerError)
		}
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	runs, err := h.runs.ListByConnectionID(r.Context(), connectionID, limit)
	if err != nil {
		log.Printf("Error listing runs for connection %s: %v", connectionID, err)
		http.Error(w, "Failed to list sync runs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}
