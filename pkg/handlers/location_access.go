package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

// LocationAccessHandler manages which locations a team member can see.
type LocationAccessHandler struct {
	access services.LocationAccessService
	logger *zap.Logger
}

// NewLocationAccessHandler creates a new location access handler.
func NewLocationAccessHandler(access services.LocationAccessService, logger *zap.Logger) *LocationAccessHandler {
	return &LocationAccessHandler{access: access, logger: logger}
}

// RegisterRoutes registers the access routes. Only admins manage grants.
func (h *LocationAccessHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	admin := authMiddleware.RequireRole(auth.RoleAdmin)
	base := "/api/users/{uid}/access"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(tenantMiddleware(admin(h.List))))
	mux.HandleFunc("PUT "+base+"/all", authMiddleware.RequireAuth(tenantMiddleware(admin(h.AssignAll))))
	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(tenantMiddleware(admin(h.Grant))))
	mux.HandleFunc("DELETE "+base+"/{aid}", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Revoke))))
}

type accessResponse struct {
	Grants      []*models.LocationAccess `json:"grants"`
	LocationIDs []uuid.UUID              `json:"location_ids"`
}

type grantRequest struct {
	AccessType string     `json:"access_type"` // location or group
	LocationID *uuid.UUID `json:"location_id"`
	GroupID    *uuid.UUID `json:"group_id"`
}

// List handles GET /api/users/{uid}/access
// Returns the raw grants together with the resolved location IDs.
func (h *LocationAccessHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}

	grants, err := h.access.ListGrants(r.Context(), p.OrganizationID, userID)
	if err != nil {
		writeServiceError(w, err, "list access grants", h.logger)
		return
	}
	ids, err := h.access.ResolveLocationIDs(r.Context(), p.OrganizationID, userID)
	if err != nil {
		writeServiceError(w, err, "resolve locations", h.logger)
		return
	}
	writeData(w, http.StatusOK, accessResponse{Grants: grants, LocationIDs: ids}, h.logger)
}

// AssignAll handles PUT /api/users/{uid}/access/all
func (h *LocationAccessHandler) AssignAll(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}
	grant, err := h.access.AssignAllLocations(r.Context(), p.OrganizationID, userID)
	if err != nil {
		writeServiceError(w, err, "assign all locations", h.logger)
		return
	}
	writeData(w, http.StatusOK, grant, h.logger)
}

// Grant handles POST /api/users/{uid}/access
func (h *LocationAccessHandler) Grant(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}
	var req grantRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	var (
		grant *models.LocationAccess
		err   error
	)
	switch {
	case req.AccessType == models.AccessLocation && req.LocationID != nil:
		grant, err = h.access.GrantLocation(r.Context(), p.OrganizationID, userID, *req.LocationID)
	case req.AccessType == models.AccessGroup && req.GroupID != nil:
		grant, err = h.access.GrantGroup(r.Context(), p.OrganizationID, userID, *req.GroupID)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request",
			"access_type must be location (with location_id) or group (with group_id)", h.logger)
		return
	}
	if err != nil {
		writeServiceError(w, err, "grant access", h.logger)
		return
	}
	writeData(w, http.StatusCreated, grant, h.logger)
}

// Revoke handles DELETE /api/users/{uid}/access/{aid}
func (h *LocationAccessHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	userID, ok := ParseUserID(w, r, h.logger)
	if !ok {
		return
	}
	accessID, ok := ParseAccessID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.access.Revoke(r.Context(), p.OrganizationID, userID, accessID); err != nil {
		writeServiceError(w, err, "revoke access", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
