package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

// TeamHandler handles organization members and invitations.
type TeamHandler struct {
	team        services.TeamService
	frontendURL string
	logger      *zap.Logger
}

// NewTeamHandler creates a new team handler. frontendURL builds the invitation link.
func NewTeamHandler(team services.TeamService, frontendURL string, logger *zap.Logger) *TeamHandler {
	return &TeamHandler{team: team, frontendURL: strings.TrimSuffix(frontendURL, "/"), logger: logger}
}

// RegisterRoutes registers the team routes. Invitation acceptance lives on MeHandler
// since the caller has no organization yet.
func (h *TeamHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	admin := authMiddleware.RequireRole(auth.RoleAdmin)

	mux.HandleFunc("GET /api/team", authMiddleware.RequireAuth(tenantMiddleware(h.Members)))
	mux.HandleFunc("GET /api/team/invitations", authMiddleware.RequireAuth(tenantMiddleware(admin(h.ListInvitations))))
	mux.HandleFunc("POST /api/team/invitations", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Invite))))
	mux.HandleFunc("DELETE /api/team/invitations/{iid}", authMiddleware.RequireAuth(tenantMiddleware(admin(h.RevokeInvitation))))
	mux.HandleFunc("PUT /api/team/members/{uid}/role", authMiddleware.RequireAuth(tenantMiddleware(admin(h.ChangeRole))))
	mux.HandleFunc("DELETE /api/team/members/{uid}", authMiddleware.RequireAuth(tenantMiddleware(admin(h.RemoveMember))))
}

type inviteRequest struct {
	Email        string      `json:"email"`
	Role         string      `json:"role"`
	AllLocations bool        `json:"all_locations"`
	LocationIDs  []uuid.UUID `json:"location_ids"`
	GroupIDs     []uuid.UUID `json:"group_ids"`
}

// inviteResponse carries the token once, at creation; listings never expose it.
type inviteResponse struct {
	Invitation *models.TeamInvitation `json:"invitation"`
	Token      string                 `json:"token"`
	AcceptURL  string                 `json:"accept_url"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

// Members handles GET /api/team
func (h *TeamHandler) Members(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	members, err := h.team.Members(r.Context(), p.OrganizationID)
	if err != nil {
		writeServiceError(w, err, "list team members", h.logger)
		return
	}
	writeData(w, http.StatusOK, members, h.logger)
}

// ListInvitations handles GET /api/team/invitations
func (h *TeamHandler) ListInvitations(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	list, err := h.team.ListInvitations(r.Context(), p.OrganizationID)
	if err != nil {
		writeServiceError(w, err, "list invitations", h.logger)
		return
	}
	writeData(w, http.StatusOK, list, h.logger)
}

// Invite handles POST /api/team/invitations
func (h *TeamHandler) Invite(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	var req inviteRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	inv, err := h.team.Invite(r.Context(), p.OrganizationID, p.UserID, &models.TeamInvitation{
		Email:        req.Email,
		Role:         req.Role,
		AllLocations: req.AllLocations,
		LocationIDs:  req.LocationIDs,
		GroupIDs:     req.GroupIDs,
	})
	if err != nil {
		writeServiceError(w, err, "create invitation", h.logger)
		return
	}
	writeData(w, http.StatusCreated, inviteResponse{
		Invitation: inv,
		Token:      inv.Token,
		AcceptURL:  h.frontendURL + "/invitations/accept?token=" + url.QueryEscape(inv.Token),
	}, h.logger)
}

// RevokeInvitation handles DELETE /api/team/invitations/{iid}
func (h *TeamHandler) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseInvitationID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.team.RevokeInvitation(r.Context(), p.OrganizationID, id); err != nil {
		writeServiceError(w, err, "revoke invitation", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeRole handles PUT /api/team/members/{uid}/role
func (h *TeamHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}
	var req changeRoleRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if err := h.team.ChangeRole(r.Context(), p.OrganizationID, p.UserID, userID, req.Role); err != nil {
		writeServiceError(w, err, "change role", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember handles DELETE /api/team/members/{uid}
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.team.RemoveMember(r.Context(), p.OrganizationID, p.UserID, userID); err != nil {
		writeServiceError(w, err, "remove member", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
