package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

// LocationGroupHandler handles the location group hierarchy.
type LocationGroupHandler struct {
	groups services.LocationGroupService
	logger *zap.Logger
}

// NewLocationGroupHandler creates a new location group handler.
func NewLocationGroupHandler(groups services.LocationGroupService, logger *zap.Logger) *LocationGroupHandler {
	return &LocationGroupHandler{groups: groups, logger: logger}
}

// RegisterRoutes registers the location group routes on the given mux.
func (h *LocationGroupHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	admin := authMiddleware.RequireRole(auth.RoleAdmin)
	base := "/api/location-groups"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(tenantMiddleware(h.Tree)))
	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(tenantMiddleware(admin(h.Create))))
	mux.HandleFunc("PUT "+base+"/{gid}", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Rename))))
	mux.HandleFunc("DELETE "+base+"/{gid}", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Delete))))
	mux.HandleFunc("POST "+base+"/{gid}/move", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Move))))
}

type groupRequest struct {
	Name     string     `json:"name"`
	ParentID *uuid.UUID `json:"parent_id"` // nil = root
}

// Tree handles GET /api/location-groups
func (h *LocationGroupHandler) Tree(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	tree, err := h.groups.Tree(r.Context(), p.OrganizationID)
	if err != nil {
		writeServiceError(w, err, "list location groups", h.logger)
		return
	}
	writeData(w, http.StatusOK, tree, h.logger)
}

// Create handles POST /api/location-groups
func (h *LocationGroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	var req groupRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	g, err := h.groups.Create(r.Context(), p.OrganizationID, req.Name, req.ParentID)
	if err != nil {
		writeServiceError(w, err, "create location group", h.logger)
		return
	}
	writeData(w, http.StatusCreated, g, h.logger)
}

// Rename handles PUT /api/location-groups/{gid}
func (h *LocationGroupHandler) Rename(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	groupID, ok := ParseGroupID(w, r, h.logger)
	if !ok {
		return
	}
	var req groupRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	g, err := h.groups.Rename(r.Context(), p.OrganizationID, groupID, req.Name)
	if err != nil {
		writeServiceError(w, err, "rename location group", h.logger)
		return
	}
	writeData(w, http.StatusOK, g, h.logger)
}

// Move handles POST /api/location-groups/{gid}/move
func (h *LocationGroupHandler) Move(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	groupID, ok := ParseGroupID(w, r, h.logger)
	if !ok {
		return
	}
	var req groupRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	g, err := h.groups.Move(r.Context(), p.OrganizationID, groupID, req.ParentID)
	if err != nil {
		writeServiceError(w, err, "move location group", h.logger)
		return
	}
	writeData(w, http.StatusOK, g, h.logger)
}

// Delete handles DELETE /api/location-groups/{gid}
func (h *LocationGroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	groupID, ok := ParseGroupID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.groups.Delete(r.Context(), p.OrganizationID, groupID); err != nil {
		writeServiceError(w, err, "delete location group", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
