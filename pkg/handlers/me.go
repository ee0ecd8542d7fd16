package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

// MeHandler handles provisioning and the signed-in user's profile.
type MeHandler struct {
	users  services.UserService
	logger *zap.Logger
}

// NewMeHandler creates a new profile handler.
func NewMeHandler(users services.UserService, logger *zap.Logger) *MeHandler {
	return &MeHandler{users: users, logger: logger}
}

// RegisterRoutes registers the profile routes. Provisioning and invitation acceptance run
// before the caller has an organization, so they use the unscoped middleware.
func (h *MeHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware, unscopedMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/me/provision", authMiddleware.RequireAuth(unscopedMiddleware(h.Provision)))
	mux.HandleFunc("POST /api/team/invitations/accept", authMiddleware.RequireAuth(unscopedMiddleware(h.AcceptInvitation)))
	mux.HandleFunc("GET /api/me", authMiddleware.RequireAuth(tenantMiddleware(h.Me)))
}

type provisionRequest struct {
	InvitationToken string `json:"invitation_token"`
}

// Provision handles POST /api/me/provision
// Creates the user and, on first sign-in, an organization they own. Idempotent.
func (h *MeHandler) Provision(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication", h.logger)
		return
	}

	// The body is optional.
	var req provisionRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req, h.logger) {
		return
	}

	profile, err := h.users.ProvisionFromClaims(r.Context(), claims, strings.TrimSpace(req.InvitationToken))
	if err != nil {
		writeServiceError(w, err, "provision user", h.logger)
		return
	}
	writeData(w, http.StatusOK, profile, h.logger)
}

type acceptInvitationRequest struct {
	Token string `json:"token"`
}

// AcceptInvitation handles POST /api/team/invitations/accept
func (h *MeHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Missing authentication", h.logger)
		return
	}

	var req acceptInvitationRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	profile, err := h.users.AcceptInvitation(r.Context(), claims, strings.TrimSpace(req.Token))
	if err != nil {
		writeServiceError(w, err, "accept invitation", h.logger)
		return
	}
	writeData(w, http.StatusOK, profile, h.logger)
}

// Me handles GET /api/me
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}

	profile, err := h.users.Me(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, err, "load profile", h.logger)
		return
	}
	writeData(w, http.StatusOK, profile, h.logger)
}
