package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/audit"
)

var testWebhookConfig = WebhookConfig{
	FacebookAppSecret:   "app-secret",
	FacebookVerifyToken: "verify-me",
	GooglePubSubToken:   "pubsub-token",
}

func newWebhookHandler(syncer *mockSyncer, cfg WebhookConfig) *WebhookHandler {
	return NewWebhookHandler(syncer, cfg, audit.NewSecurityAuditor(zap.NewNop()), zap.NewNop())
}

func sign(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookHandler_FacebookVerify(t *testing.T) {
	h := newWebhookHandler(&mockSyncer{}, testWebhookConfig)

	rec := httptest.NewRecorder()
	h.FacebookVerify(rec, httptest.NewRequest(http.MethodGet,
		"/api/webhooks/facebook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())

	rec = httptest.NewRecorder()
	h.FacebookVerify(rec, httptest.NewRequest(http.MethodGet,
		"/api/webhooks/facebook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "12345")
}

func TestWebhookHandler_FacebookRatingsTriggersSync(t *testing.T) {
	syncer := &mockSyncer{}
	h := newWebhookHandler(syncer, testWebhookConfig)
	body := `{"object":"page","entry":[` +
		`{"id":"page-1","changes":[{"field":"feed"},{"field":"ratings"},{"field":"ratings"}]},` +
		`{"id":"page-2","changes":[{"field":"feed"}]}]}`

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/facebook", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(body, "app-secret"))
	rec := httptest.NewRecorder()
	h.Facebook(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [][2]string{{"facebook", "page-1"}}, syncer.calls)
}

func TestWebhookHandler_FacebookBadSignature(t *testing.T) {
	body := `{"object":"page","entry":[{"id":"page-1","changes":[{"field":"ratings"}]}]}`
	tests := []struct {
		name   string
		header string
		cfg    WebhookConfig
	}{
		{"missing", "", testWebhookConfig},
		{"wrong secret", sign(body, "other"), testWebhookConfig},
		{"not hex", "sha256=zz", testWebhookConfig},
		{"no secret configured", sign(body, ""), WebhookConfig{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &mockSyncer{}
			req := httptest.NewRequest(http.MethodPost, "/api/webhooks/facebook", strings.NewReader(body))
			if tt.header != "" {
				req.Header.Set("X-Hub-Signature-256", tt.header)
			}
			rec := httptest.NewRecorder()
			newWebhookHandler(syncer, tt.cfg).Facebook(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Empty(t, syncer.calls)
		})
	}
}

func TestWebhookHandler_FacebookSyncFailureStillAcknowledged(t *testing.T) {
	syncer := &mockSyncer{err: errors.New("platform down")}
	body := `{"object":"page","entry":[{"id":"page-1","changes":[{"field":"ratings"}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/facebook", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign(body, "app-secret"))
	rec := httptest.NewRecorder()

	newWebhookHandler(syncer, testWebhookConfig).Facebook(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, syncer.calls, 1)
}

func pubSubBody(data string) string {
	return `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte(data)) +
		`","messageId":"m1"},"subscription":"projects/p/subscriptions/s"}`
}

func TestWebhookHandler_Google(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		calls [][2]string
	}{
		{
			name:  "new review with location",
			body:  pubSubBody(`{"type":"NEW_REVIEW","location":"accounts/1/locations/2"}`),
			calls: [][2]string{{"google", "accounts/1/locations/2"}},
		},
		{
			name:  "location derived from review name",
			body:  pubSubBody(`{"notificationType":"UPDATED_REVIEW","review":"accounts/1/locations/3/reviews/abc"}`),
			calls: [][2]string{{"google", "accounts/1/locations/3"}},
		},
		{
			name: "other notification",
			body: pubSubBody(`{"type":"NEW_QUESTION","location":"accounts/1/locations/2"}`),
		},
		{
			name: "undecodable push",
			body: `not json`,
		},
		{
			name: "bad base64",
			body: `{"message":{"data":"%%%"}}`,
		},
		{
			name: "bad payload",
			body: pubSubBody(`nope`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &mockSyncer{}
			req := httptest.NewRequest(http.MethodPost, "/api/webhooks/google?token=pubsub-token", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			newWebhookHandler(syncer, testWebhookConfig).Google(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, tt.calls, syncer.calls)
		})
	}
}

func TestWebhookHandler_GoogleRejectsBadToken(t *testing.T) {
	body := pubSubBody(`{"type":"NEW_REVIEW","location":"accounts/1/locations/2"}`)
	for _, cfg := range []WebhookConfig{testWebhookConfig, {}} {
		syncer := &mockSyncer{}
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/google?token=guess", strings.NewReader(body))
		rec := httptest.NewRecorder()
		newWebhookHandler(syncer, cfg).Google(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, syncer.calls)
	}
}

func TestWebhookHandler_Routes(t *testing.T) {
	mux := http.NewServeMux()
	newWebhookHandler(&mockSyncer{}, testWebhookConfig).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/webhooks/facebook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=ok", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/webhooks/google", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
