package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/audit"
	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

// PlatformHandler handles review platform connections and the OAuth callback.
type PlatformHandler struct {
	platforms   services.PlatformService
	sessions    *auth.SessionStore
	auditor     *audit.SecurityAuditor
	frontendURL string
	logger      *zap.Logger
}

// NewPlatformHandler creates a new platform handler. frontendURL is where the callback sends
// the browser back to, and the only origin a client-supplied return URL may point at.
func NewPlatformHandler(
	platforms services.PlatformService,
	sessions *auth.SessionStore,
	auditor *audit.SecurityAuditor,
	frontendURL string,
	logger *zap.Logger,
) *PlatformHandler {
	return &PlatformHandler{
		platforms:   platforms,
		sessions:    sessions,
		auditor:     auditor,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
		logger:      logger,
	}
}

// RegisterRoutes registers the platform routes. The callback is reached by a browser redirect
// from the platform, so it carries no bearer token and relies on the single-use state instead.
func (h *PlatformHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	admin := authMiddleware.RequireRole(auth.RoleAdmin)
	manager := authMiddleware.RequireRole(auth.RoleManager)
	base := "/api/businesses/{bid}/platforms"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("POST "+base+"/{platform}/connect", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Connect))))
	mux.HandleFunc("POST "+base+"/{platform}/sync", authMiddleware.RequireAuth(tenantMiddleware(manager(h.Sync))))
	mux.HandleFunc("DELETE "+base+"/{platform}", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Disconnect))))
	mux.HandleFunc("GET /api/oauth/{platform}/callback", h.Callback)
}

type connectRequest struct {
	// AccountID selects the listing up front on platforms without account discovery (Yelp).
	AccountID string `json:"account_id"`
	ReturnURL string `json:"return_url"`
}

type connectResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

type syncResponse struct {
	Inserted int `json:"inserted"`
}

// List handles GET /api/businesses/{bid}/platforms
func (h *PlatformHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	conns, err := h.platforms.ListConnections(r.Context(), p.OrganizationID, businessID)
	if err != nil {
		writeServiceError(w, err, "list platform connections", h.logger)
		return
	}
	writeData(w, http.StatusOK, conns, h.logger)
}

// Connect handles POST /api/businesses/{bid}/platforms/{platform}/connect
// Returns the platform's consent URL and binds the issued state to this browser.
func (h *PlatformHandler) Connect(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	var req connectRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req, h.logger) {
		return
	}

	returnURL := h.safeReturnURL(req.ReturnURL)
	authURL, err := h.platforms.BeginConnect(r.Context(), &services.OAuthState{
		Platform:       r.PathValue("platform"),
		OrganizationID: p.OrganizationID,
		BusinessID:     businessID,
		UserID:         p.UserID,
		AccountID:      strings.TrimSpace(req.AccountID),
		ReturnURL:      returnURL,
	})
	if err != nil {
		writeServiceError(w, err, "start platform connection", h.logger)
		return
	}

	if u, err := url.Parse(authURL); err == nil {
		if err := h.sessions.Put(w, r, u.Query().Get("state"), returnURL); err != nil {
			h.logger.Warn("Failed to save oauth session", zap.Error(err))
		}
	}
	writeData(w, http.StatusOK, connectResponse{AuthorizationURL: authURL}, h.logger)
}

// Callback handles GET /api/oauth/{platform}/callback
// Always answers with a redirect to the frontend carrying the outcome in the query string.
func (h *PlatformHandler) Callback(w http.ResponseWriter, r *http.Request) {
	platform := r.PathValue("platform")
	q := r.URL.Query()
	state := q.Get("state")

	sessionState, sessionReturn, err := h.sessions.Take(w, r)
	if err != nil {
		h.logger.Warn("Failed to clear oauth session", zap.Error(err))
	}
	returnURL := h.safeReturnURL(sessionReturn)

	if denied := q.Get("error"); denied != "" {
		h.logger.Info("Platform authorization declined",
			zap.String("platform", platform),
			zap.String("error", denied))
		h.redirect(w, r, returnURL, platform, "access_denied")
		return
	}

	// A cookie from this browser must agree with the state it comes back with.
	if sessionState != "" && sessionState != state {
		h.auditor.LogOAuthStateRejected(r.Context(), platform, r.RemoteAddr)
		h.redirect(w, r, returnURL, platform, "invalid_state")
		return
	}

	conn, st, err := h.platforms.CompleteConnect(r.Context(), platform, state, q.Get("code"))
	if st != nil && st.ReturnURL != "" {
		returnURL = h.safeReturnURL(st.ReturnURL)
	}
	if err != nil {
		code := "connection_failed"
		switch {
		case errors.Is(err, apperrors.ErrInvalidOAuthState):
			h.auditor.LogOAuthStateRejected(r.Context(), platform, r.RemoteAddr)
			code = "invalid_state"
		case errors.Is(err, apperrors.ErrInvalidInput):
			code = "invalid_request"
		default:
			h.logger.Error("Failed to complete platform connection",
				zap.String("platform", platform),
				zap.Error(err))
		}
		h.redirect(w, r, returnURL, platform, code)
		return
	}

	h.logger.Info("Platform connected",
		zap.String("platform", platform),
		zap.String("organization_id", conn.OrganizationID.String()),
		zap.String("business_id", conn.BusinessID.String()))
	h.redirect(w, r, returnURL, platform, "")
}

// Sync handles POST /api/businesses/{bid}/platforms/{platform}/sync
func (h *PlatformHandler) Sync(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	n, err := h.platforms.SyncReviews(r.Context(), p.OrganizationID, businessID, r.PathValue("platform"))
	if err != nil {
		writeServiceError(w, err, "sync reviews", h.logger)
		return
	}
	writeData(w, http.StatusOK, syncResponse{Inserted: n}, h.logger)
}

// Disconnect handles DELETE /api/businesses/{bid}/platforms/{platform}
func (h *PlatformHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.platforms.Disconnect(r.Context(), p.OrganizationID, businessID, r.PathValue("platform")); err != nil {
		writeServiceError(w, err, "disconnect platform", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// safeReturnURL keeps redirects on the frontend origin. Anything else falls back to it.
func (h *PlatformHandler) safeReturnURL(raw string) string {
	if raw == "" {
		return h.frontendURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return h.frontendURL
	}
	if !u.IsAbs() {
		if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
			return h.frontendURL
		}
		return h.frontendURL + raw
	}
	front, err := url.Parse(h.frontendURL)
	if err != nil || u.Scheme != front.Scheme || u.Host != front.Host {
		return h.frontendURL
	}
	return raw
}

func (h *PlatformHandler) redirect(w http.ResponseWriter, r *http.Request, target, platform, errCode string) {
	u, err := url.Parse(target)
	if err != nil {
		u, _ = url.Parse(h.frontendURL)
	}
	q := u.Query()
	if errCode != "" {
		q.Set("platform_error", errCode)
		q.Set("platform", platform)
	} else {
		q.Set("connected", platform)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}
