package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/audit"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
)

const maxWebhookBody = 1 << 20

// AccountSyncer pulls new reviews for the connections bound to a platform account.
type AccountSyncer interface {
	SyncExternalAccount(ctx context.Context, platform, externalAccountID string) (int, error)
}

// WebhookConfig holds the shared secrets inbound webhooks are verified with.
type WebhookConfig struct {
	FacebookAppSecret   string
	FacebookVerifyToken string
	GooglePubSubToken   string
}

// WebhookHandler receives review notifications pushed by the platforms.
type WebhookHandler struct {
	syncer  AccountSyncer
	cfg     WebhookConfig
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(syncer AccountSyncer, cfg WebhookConfig, auditor *audit.SecurityAuditor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{syncer: syncer, cfg: cfg, auditor: auditor, logger: logger.Named("webhooks")}
}

// RegisterRoutes registers the webhook routes. They are unauthenticated and verified by
// shared secret instead.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/webhooks/facebook", h.FacebookVerify)
	mux.HandleFunc("POST /api/webhooks/facebook", h.Facebook)
	mux.HandleFunc("POST /api/webhooks/google", h.Google)
}

// FacebookVerify handles the subscription handshake: echo hub.challenge when the verify
// token matches.
func (h *WebhookHandler) FacebookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || h.cfg.FacebookVerifyToken == "" ||
		!secretEqual(q.Get("hub.verify_token"), h.cfg.FacebookVerifyToken) {
		h.auditor.LogWebhookRejected(r.Context(), models.PlatformFacebook, "verify token mismatch", r.RemoteAddr)
		writeError(w, http.StatusForbidden, "forbidden", "Verification failed", h.logger)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

type facebookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
		} `json:"changes"`
	} `json:"entry"`
}

// Facebook handles POST /api/webhooks/facebook
// A "ratings" change on a page triggers a review sync for the connection bound to it.
func (h *WebhookHandler) Facebook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read body", h.logger)
		return
	}
	if !validFacebookSignature(body, r.Header.Get("X-Hub-Signature-256"), h.cfg.FacebookAppSecret) {
		h.auditor.LogWebhookRejected(r.Context(), models.PlatformFacebook, "bad signature", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid_signature", "Signature verification failed", h.logger)
		return
	}

	var payload facebookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid payload", h.logger)
		return
	}

	if payload.Object == "page" {
		for _, entry := range payload.Entry {
			for _, change := range entry.Changes {
				if change.Field == "ratings" {
					h.sync(r.Context(), models.PlatformFacebook, entry.ID)
					break
				}
			}
		}
	}
	w.WriteHeader(http.StatusOK)
}

// validFacebookSignature checks the "sha256=<hex>" HMAC of the raw body.
func validFacebookSignature(body []byte, header, secret string) bool {
	if secret == "" {
		return false
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

type pubSubPush struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// googleNotification is the decoded Pub/Sub data of a Business Profile notification.
type googleNotification struct {
	Type             string `json:"type"`
	NotificationType string `json:"notificationType"`
	Location         string `json:"location"`
	LocationName     string `json:"locationName"`
	Review           string `json:"review"`
}

func (n *googleNotification) kind() string {
	if n.Type != "" {
		return n.Type
	}
	return n.NotificationType
}

// location returns accounts/{a}/locations/{l}, derived from the review name when absent.
func (n *googleNotification) location() string {
	switch {
	case n.Location != "":
		return n.Location
	case n.LocationName != "":
		return n.LocationName
	}
	if i := strings.Index(n.Review, "/reviews/"); i > 0 {
		return n.Review[:i]
	}
	return ""
}

// Google handles POST /api/webhooks/google?token=
// Pub/Sub retries anything but 2xx, so malformed messages are acknowledged and dropped.
func (h *WebhookHandler) Google(w http.ResponseWriter, r *http.Request) {
	if h.cfg.GooglePubSubToken == "" || !secretEqual(r.URL.Query().Get("token"), h.cfg.GooglePubSubToken) {
		h.auditor.LogWebhookRejected(r.Context(), models.PlatformGoogle, "bad token", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid_token", "Token verification failed", h.logger)
		return
	}

	var push pubSubPush
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&push); err != nil {
		h.logger.Warn("Dropping undecodable Pub/Sub push", zap.Error(err))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	data, err := base64.StdEncoding.DecodeString(push.Message.Data)
	if err != nil {
		h.logger.Warn("Dropping Pub/Sub message with bad data", zap.String("message_id", push.Message.MessageID))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var n googleNotification
	if err := json.Unmarshal(data, &n); err != nil {
		h.logger.Warn("Dropping Pub/Sub message with bad payload", zap.String("message_id", push.Message.MessageID))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if n.kind() == "NEW_REVIEW" || n.kind() == "UPDATED_REVIEW" {
		if loc := n.location(); loc != "" {
			h.sync(r.Context(), models.PlatformGoogle, loc)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// sync runs a single sync attempt. Failures are logged; the platform is not asked to retry.
func (h *WebhookHandler) sync(ctx context.Context, platform, account string) {
	n, err := h.syncer.SyncExternalAccount(ctx, platform, account)
	if err != nil {
		h.logger.Error("Webhook sync failed",
			zap.String("platform", platform),
			zap.String("account", account),
			zap.Error(err))
		return
	}
	h.logger.Info("Webhook sync finished",
		zap.String("platform", platform),
		zap.String("account", account),
		zap.Int("inserted", n))
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
