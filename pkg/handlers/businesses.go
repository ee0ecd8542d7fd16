package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

// BusinessHandler handles business CRUD.
type BusinessHandler struct {
	businesses services.BusinessService
	logger     *zap.Logger
}

// NewBusinessHandler creates a new business handler.
func NewBusinessHandler(businesses services.BusinessService, logger *zap.Logger) *BusinessHandler {
	return &BusinessHandler{businesses: businesses, logger: logger}
}

// RegisterRoutes registers the business routes on the given mux.
func (h *BusinessHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	admin := authMiddleware.RequireRole(auth.RoleAdmin)

	mux.HandleFunc("GET /api/businesses", authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("POST /api/businesses", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Create))))
	mux.HandleFunc("GET /api/businesses/{bid}", authMiddleware.RequireAuth(tenantMiddleware(h.Get)))
	mux.HandleFunc("PUT /api/businesses/{bid}", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Update))))
	mux.HandleFunc("DELETE /api/businesses/{bid}", authMiddleware.RequireAuth(tenantMiddleware(admin(h.Delete))))
}

type businessRequest struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
	Website  *string `json:"website"`
	Phone    *string `json:"phone"`
	Address  *string `json:"address"`
}

func (req *businessRequest) apply(b *models.Business) {
	setString(&b.Name, req.Name)
	setString(&b.Category, req.Category)
	setString(&b.Website, req.Website)
	setString(&b.Phone, req.Phone)
	setString(&b.Address, req.Address)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// List handles GET /api/businesses
func (h *BusinessHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	list, err := h.businesses.List(r.Context(), p.OrganizationID)
	if err != nil {
		writeServiceError(w, err, "list businesses", h.logger)
		return
	}
	writeData(w, http.StatusOK, list, h.logger)
}

// Create handles POST /api/businesses
func (h *BusinessHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	var req businessRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	b := &models.Business{OrganizationID: p.OrganizationID}
	req.apply(b)
	created, err := h.businesses.Create(r.Context(), b)
	if err != nil {
		writeServiceError(w, err, "create business", h.logger)
		return
	}
	writeData(w, http.StatusCreated, created, h.logger)
}

// Get handles GET /api/businesses/{bid}
func (h *BusinessHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	b, err := h.businesses.Get(r.Context(), p.OrganizationID, businessID)
	if err != nil {
		writeServiceError(w, err, "get business", h.logger)
		return
	}
	writeData(w, http.StatusOK, b, h.logger)
}

// Update handles PUT /api/businesses/{bid}. Omitted fields keep their values.
func (h *BusinessHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	var req businessRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	b, err := h.businesses.Get(r.Context(), p.OrganizationID, businessID)
	if err != nil {
		writeServiceError(w, err, "get business", h.logger)
		return
	}
	req.apply(b)
	updated, err := h.businesses.Update(r.Context(), b)
	if err != nil {
		writeServiceError(w, err, "update business", h.logger)
		return
	}
	writeData(w, http.StatusOK, updated, h.logger)
}

// Delete handles DELETE /api/businesses/{bid}
func (h *BusinessHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.businesses.Delete(r.Context(), p.OrganizationID, businessID); err != nil {
		writeServiceError(w, err, "delete business", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
