package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

// CompetitorHandler handles competitor tracking.
type CompetitorHandler struct {
	competitors services.CompetitorService
	logger      *zap.Logger
}

// NewCompetitorHandler creates a new competitor handler.
func NewCompetitorHandler(competitors services.CompetitorService, logger *zap.Logger) *CompetitorHandler {
	return &CompetitorHandler{competitors: competitors, logger: logger}
}

// RegisterRoutes registers the competitor routes on the given mux.
func (h *CompetitorHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	manager := authMiddleware.RequireRole(auth.RoleManager)

	mux.HandleFunc("GET /api/businesses/{bid}/competitors", authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("POST /api/businesses/{bid}/competitors", authMiddleware.RequireAuth(tenantMiddleware(manager(h.Add))))
	mux.HandleFunc("DELETE /api/competitors/{cid}", authMiddleware.RequireAuth(tenantMiddleware(manager(h.Remove))))
	mux.HandleFunc("POST /api/competitors/{cid}/refresh", authMiddleware.RequireAuth(tenantMiddleware(manager(h.Refresh))))
	mux.HandleFunc("GET /api/competitors/{cid}/history", authMiddleware.RequireAuth(tenantMiddleware(h.History)))
}

type addCompetitorRequest struct {
	Name       string `json:"name"`
	Platform   string `json:"platform"`
	ExternalID string `json:"external_id"`
	WebsiteURL string `json:"website_url"`
}

// List handles GET /api/businesses/{bid}/competitors
func (h *CompetitorHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	list, err := h.competitors.List(r.Context(), p.OrganizationID, businessID)
	if err != nil {
		writeServiceError(w, err, "list competitors", h.logger)
		return
	}
	writeData(w, http.StatusOK, list, h.logger)
}

// Add handles POST /api/businesses/{bid}/competitors
func (h *CompetitorHandler) Add(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	var req addCompetitorRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	c, err := h.competitors.Add(r.Context(), &models.Competitor{
		OrganizationID: p.OrganizationID,
		BusinessID:     businessID,
		Name:           req.Name,
		Platform:       strings.ToLower(strings.TrimSpace(req.Platform)),
		ExternalID:     strings.TrimSpace(req.ExternalID),
		WebsiteURL:     strings.TrimSpace(req.WebsiteURL),
	})
	if err != nil {
		writeServiceError(w, err, "add competitor", h.logger)
		return
	}
	writeData(w, http.StatusCreated, c, h.logger)
}

// Remove handles DELETE /api/competitors/{cid}
func (h *CompetitorHandler) Remove(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	competitorID, ok := ParseCompetitorID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.competitors.Remove(r.Context(), p.OrganizationID, competitorID); err != nil {
		writeServiceError(w, err, "remove competitor", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /api/competitors/{cid}/refresh
func (h *CompetitorHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	competitorID, ok := ParseCompetitorID(w, r, h.logger)
	if !ok {
		return
	}
	c, err := h.competitors.Refresh(r.Context(), p.OrganizationID, competitorID)
	if err != nil {
		writeServiceError(w, err, "refresh competitor", h.logger)
		return
	}
	writeData(w, http.StatusOK, c, h.logger)
}

// History handles GET /api/competitors/{cid}/history?limit=
func (h *CompetitorHandler) History(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	competitorID, ok := ParseCompetitorID(w, r, h.logger)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 30, h.logger)
	if !ok {
		return
	}
	snapshots, err := h.competitors.History(r.Context(), p.OrganizationID, competitorID, limit)
	if err != nil {
		writeServiceError(w, err, "load competitor history", h.logger)
		return
	}
	writeData(w, http.StatusOK, snapshots, h.logger)
}
