package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"moneta/internal/domain/connection"
	"moneta/internal/domain/provider"
	"moneta/internal/domain/sync"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20 // 1 MiB

// webhookSyncTimeout bounds the background sync a webhook kicks off. The
// HTTP response does not wait for it.
const webhookSyncTimeout = 5 * time.Minute

// ErrBadSignature means the webhook payload failed signature verification.
var ErrBadSignature = errors.New("webhook signature verification failed")

// SignatureVerifier authenticates a raw webhook payload. Substitutable in
// tests.
type SignatureVerifier interface {
	Verify(providerID string, body []byte, header http.Header) error
}

// signatureHeaders maps each provider to the header carrying its payload
// signature.
var signatureHeaders = map[string]string{
	"plaid":     "Plaid-Verification",
	"truelayer": "Tl-Signature",
	"belvo":     "X-Belvo-Signature",
	"yodlee":    "X-Yodlee-Signature",
}

// HMACVerifier checks a hex-encoded HMAC-SHA256 of the raw body against a
// per-provider shared secret. Providers without a configured secret are
// accepted unverified, which keeps demo mode usable.
type HMACVerifier struct {
	secrets map[string]string
}

// NewHMACVerifier creates a verifier from providerID -> shared secret.
func NewHMACVerifier(secrets map[string]string) *HMACVerifier {
	return &HMACVerifier{secrets: secrets}
}

func (v *HMACVerifier) Verify(providerID string, body []byte, header http.Header) error {
	secret := v.secrets[providerID]
	if secret == "" {
		return nil
	}

	headerName := signatureHeaders[providerID]
	if headerName == "" {
		headerName = "X-Webhook-Signature"
	}
	got := header.Get(headerName)
	if got == "" {
		return fmt.Errorf("%w: missing %s header", ErrBadSignature, headerName)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(got), []byte(want)) {
		return ErrBadSignature
	}
	return nil
}

// WebhookHandler ingests asynchronous provider notifications. Webhooks are
// acknowledged fast; the sync they trigger runs in the background.
type WebhookHandler struct {
	registry    *provider.Registry
	verifier    SignatureVerifier
	events      sync.WebhookEventLog
	connections connection.Repository
	syncs       SyncRunner
}

// NewWebhookHandler creates a new webhook ingestion handler.
func NewWebhookHandler(
	registry *provider.Registry,
	verifier SignatureVerifier,
	events sync.WebhookEventLog,
	connections connection.Repository,
	syncs SyncRunner,
) *WebhookHandler {
	return &WebhookHandler{
		registry:    registry,
		verifier:    verifier,
		events:      events,
		connections: connections,
		syncs:       syncs,
	}
}

// HandleWebhook processes one provider notification. Unknown items and
// duplicate deliveries are acknowledged with 200 so the provider stops
// retrying; only malformed or unauthenticated payloads get a 4xx.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	providerID := r.PathValue("providerId")
	p, err := h.registry.Get(providerID)
	if err != nil {
		http.Error(w, "Unknown provider", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	if err := h.verifier.Verify(providerID, body, r.Header); err != nil {
		log.Printf("Webhook %s: %v", providerID, err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := p.DecodeWebhook(body)
	if err != nil {
		log.Printf("Webhook %s: decode failed: %v", providerID, err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	// Some providers send no event id. Hash the payload so redeliveries of
	// the same body still dedupe.
	eventID := event.EventID
	if eventID == "" {
		digest := sha256.Sum256(body)
		eventID = hex.EncodeToString(digest[:])
	}

	first, err := h.events.MarkProcessed(r.Context(), providerID, eventID)
	if err != nil {
		log.Printf("Webhook %s: failed to record event %s: %v", providerID, eventID, err)
		http.Error(w, "Failed to record event", http.StatusInternalServerError)
		return
	}
	if !first {
		log.Printf("Webhook %s: duplicate event %s ignored", providerID, eventID)
		writeAccepted(w)
		return
	}

	conn, err := h.connections.GetByExternalItemID(r.Context(), providerID, event.ExternalItemID)
	if err != nil {
		// Unknown or already-disconnected item. Acknowledge so the
		// provider stops redelivering.
		log.Printf("Webhook %s: no connection for item %s (%s)", providerID, event.ExternalItemID, event.Kind)
		writeAccepted(w)
		return
	}

	log.Printf("Webhook %s: event %s (%s) -> connection %s", providerID, eventID, event.Kind, conn.ID)
	go h.runSync(conn.ID)

	writeAccepted(w)
}

// runSync executes the webhook-triggered sync detached from the request.
func (h *WebhookHandler) runSync(connectionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), webhookSyncTimeout)
	defer cancel()

	if _, err := h.syncs.Sync(ctx, connectionID, sync.TriggerWebhook, false); err != nil {
		log.Printf("Webhook sync for connection %s failed: %v", connectionID, err)
	}
}

func writeAccepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"accepted"}`))
}
