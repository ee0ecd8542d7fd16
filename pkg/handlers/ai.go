package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

// AIHandler handles per-business AI settings and generated insights.
type AIHandler struct {
	settings services.AISettingsService
	ai       services.AIService
	logger   *zap.Logger
}

// NewAIHandler creates a new AI handler.
func NewAIHandler(settings services.AISettingsService, ai services.AIService, logger *zap.Logger) *AIHandler {
	return &AIHandler{settings: settings, ai: ai, logger: logger}
}

// RegisterRoutes registers the AI routes on the given mux.
func (h *AIHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	admin := authMiddleware.RequireRole(auth.RoleAdmin)
	base := "/api/businesses/{bid}"

	mux.HandleFunc("GET "+base+"/ai-settings", authMiddleware.RequireAuth(tenantMiddleware(h.GetSettings)))
	mux.HandleFunc("PUT "+base+"/ai-settings", authMiddleware.RequireAuth(tenantMiddleware(admin(h.UpdateSettings))))
	mux.HandleFunc("GET "+base+"/insights", authMiddleware.RequireAuth(tenantMiddleware(h.Insights)))
	mux.HandleFunc("GET "+base+"/summary", authMiddleware.RequireAuth(tenantMiddleware(h.Summary)))
	mux.HandleFunc("GET "+base+"/competitors/comparison", authMiddleware.RequireAuth(tenantMiddleware(h.Comparison)))
}

type aiSettingsRequest struct {
	AutoReplyEnabled   bool     `json:"auto_reply_enabled"`
	MinRating          int      `json:"min_rating"`
	Platforms          []string `json:"platforms"`
	Tone               string   `json:"tone"`
	Signature          string   `json:"signature"`
	CustomInstructions string   `json:"custom_instructions"`
}

type insightsResponse struct {
	Insights []models.Insight `json:"insights"`
}

type textResponse struct {
	Text string `json:"text"`
}

// GetSettings handles GET /api/businesses/{bid}/ai-settings
func (h *AIHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	s, err := h.settings.Get(r.Context(), p.OrganizationID, businessID)
	if err != nil {
		writeServiceError(w, err, "get ai settings", h.logger)
		return
	}
	writeData(w, http.StatusOK, s, h.logger)
}

// UpdateSettings handles PUT /api/businesses/{bid}/ai-settings
func (h *AIHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	var req aiSettingsRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	s, err := h.settings.Update(r.Context(), &models.AISettings{
		OrganizationID:     p.OrganizationID,
		BusinessID:         businessID,
		AutoReplyEnabled:   req.AutoReplyEnabled,
		MinRating:          req.MinRating,
		Platforms:          req.Platforms,
		Tone:               req.Tone,
		Signature:          req.Signature,
		CustomInstructions: req.CustomInstructions,
	})
	if err != nil {
		writeServiceError(w, err, "update ai settings", h.logger)
		return
	}
	writeData(w, http.StatusOK, s, h.logger)
}

// Insights handles GET /api/businesses/{bid}/insights
func (h *AIHandler) Insights(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	insights, err := h.ai.GenerateInsights(r.Context(), p.OrganizationID, businessID)
	if err != nil {
		writeServiceError(w, err, "generate insights", h.logger)
		return
	}
	if insights == nil {
		insights = []models.Insight{}
	}
	writeData(w, http.StatusOK, insightsResponse{Insights: insights}, h.logger)
}

// Summary handles GET /api/businesses/{bid}/summary
func (h *AIHandler) Summary(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	text, err := h.ai.Summarize(r.Context(), p.OrganizationID, businessID)
	if err != nil {
		writeServiceError(w, err, "summarize reviews", h.logger)
		return
	}
	writeData(w, http.StatusOK, textResponse{Text: text}, h.logger)
}

// Comparison handles GET /api/businesses/{bid}/competitors/comparison
func (h *AIHandler) Comparison(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	text, err := h.ai.CompareCompetitors(r.Context(), p.OrganizationID, businessID)
	if err != nil {
		writeServiceError(w, err, "compare competitors", h.logger)
		return
	}
	writeData(w, http.StatusOK, textResponse{Text: text}, h.logger)
}
