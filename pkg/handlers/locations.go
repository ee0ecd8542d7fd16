package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

// LocationHandler handles location CRUD. Reads are filtered by the caller's location access.
type LocationHandler struct {
	locations services.LocationService
	logger    *zap.Logger
}

// NewLocationHandler creates a new location handler.
func NewLocationHandler(locations services.LocationService, logger *zap.Logger) *LocationHandler {
	return &LocationHandler{locations: locations, logger: logger}
}

// RegisterRoutes registers the location routes on the given mux.
func (h *LocationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	admin := authMiddleware.RequireRole(auth.RoleAdmin)

	mux.HandleFunc("GET /api/locations", authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("POST /api/locations", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Create))))
	mux.HandleFunc("GET /api/locations/{lid}", authMiddleware.RequireAuth(tenantMiddleware(h.Get)))
	mux.HandleFunc("PUT /api/locations/{lid}", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Update))))
	mux.HandleFunc("DELETE /api/locations/{lid}", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Delete))))
}

// locationRequest is a partial update: nil fields are left alone. The ID references are
// replaced wholesale, so clearing one requires the matching clear_* flag.
type locationRequest struct {
	Name               *string    `json:"name"`
	Address            *string    `json:"address"`
	City               *string    `json:"city"`
	State              *string    `json:"state"`
	PostalCode         *string    `json:"postal_code"`
	Phone              *string    `json:"phone"`
	GoogleLocationName *string    `json:"google_location_name"`
	BusinessID         *uuid.UUID `json:"business_id"`
	GroupID            *uuid.UUID `json:"group_id"`
	ManagerID          *uuid.UUID `json:"manager_id"`
	ClearGroup         bool       `json:"clear_group"`
	ClearManager       bool       `json:"clear_manager"`
	IsActive           *bool      `json:"is_active"`
}

func (req *locationRequest) apply(l *models.Location) {
	setString(&l.Name, req.Name)
	setString(&l.Address, req.Address)
	setString(&l.City, req.City)
	setString(&l.State, req.State)
	setString(&l.PostalCode, req.PostalCode)
	setString(&l.Phone, req.Phone)
	setString(&l.GoogleLocationName, req.GoogleLocationName)
	if req.BusinessID != nil {
		l.BusinessID = req.BusinessID
	}
	if req.GroupID != nil {
		l.GroupID = req.GroupID
	}
	if req.ClearGroup {
		l.GroupID = nil
	}
	if req.ManagerID != nil {
		l.ManagerID = req.ManagerID
	}
	if req.ClearManager {
		l.ManagerID = nil
	}
	if req.IsActive != nil {
		l.IsActive = *req.IsActive
	}
}

// List handles GET /api/locations
func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	list, err := h.locations.List(r.Context(), p.OrganizationID, p.UserID)
	if err != nil {
		writeServiceError(w, err, "list locations", h.logger)
		return
	}
	writeData(w, http.StatusOK, list, h.logger)
}

// Create handles POST /api/locations
func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	var req locationRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	l := &models.Location{OrganizationID: p.OrganizationID}
	req.apply(l)
	created, err := h.locations.Create(r.Context(), l)
	if err != nil {
		writeServiceError(w, err, "create location", h.logger)
		return
	}
	writeData(w, http.StatusCreated, created, h.logger)
}

// Get handles GET /api/locations/{lid}
func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	locationID, ok := ParseLocationID(w, r, h.logger)
	if !ok {
		return
	}
	l, err := h.locations.Get(r.Context(), p.OrganizationID, p.UserID, locationID)
	if err != nil {
		writeServiceError(w, err, "get location", h.logger)
		return
	}
	writeData(w, http.StatusOK, l, h.logger)
}

// Update handles PUT /api/locations/{lid}
func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	locationID, ok := ParseLocationID(w, r, h.logger)
	if !ok {
		return
	}
	var req locationRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	l, err := h.locations.Get(r.Context(), p.OrganizationID, p.UserID, locationID)
	if err != nil {
		writeServiceError(w, err, "get location", h.logger)
		return
	}
	req.apply(l)
	updated, err := h.locations.Update(r.Context(), l)
	if err != nil {
		writeServiceError(w, err, "update location", h.logger)
		return
	}
	writeData(w, http.StatusOK, updated, h.logger)
}

// Delete handles DELETE /api/locations/{lid}
func (h *LocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	locationID, ok := ParseLocationID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.locations.Delete(r.Context(), p.OrganizationID, locationID); err != nil {
		writeServiceError(w, err, "delete location", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
