package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/audit"
	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

const (
	defaultReviewPageSize = 50
	maxReviewPageSize     = 200
)

// ReviewHandler handles review listing, replies and analytics.
type ReviewHandler struct {
	reviews services.ReviewService
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewReviewHandler creates a new review handler.
func NewReviewHandler(reviews services.ReviewService, auditor *audit.SecurityAuditor, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, auditor: auditor, logger: logger}
}

// RegisterRoutes registers the review routes on the given mux.
func (h *ReviewHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	manager := authMiddleware.RequireRole(auth.RoleManager)

	mux.HandleFunc("GET /api/businesses/{bid}/reviews", authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("GET /api/businesses/{bid}/analytics", authMiddleware.RequireAuth(tenantMiddleware(h.Analytics)))
	mux.HandleFunc("GET /api/reviews/{rid}", authMiddleware.RequireAuth(tenantMiddleware(h.Get)))
	mux.HandleFunc("POST /api/reviews/{rid}/respond", authMiddleware.RequireAuth(tenantMiddleware(manager(h.Respond))))
	mux.HandleFunc("POST /api/reviews/{rid}/draft", authMiddleware.RequireAuth(tenantMiddleware(manager(h.Draft))))
	mux.HandleFunc("PUT /api/reviews/{rid}/sentiment", authMiddleware.RequireAuth(tenantMiddleware(manager(h.UpdateSentiment))))
}

type reviewListResponse struct {
	Reviews []*models.Review `json:"reviews"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

type respondRequest struct {
	Text string `json:"text"`
}

type draftResponse struct {
	Text string `json:"text"`
}

type sentimentRequest struct {
	Sentiment string `json:"sentiment"`
}

// parseReviewFilter reads the listing filter from the query string.
func (h *ReviewHandler) parseReviewFilter(w http.ResponseWriter, r *http.Request, businessID uuid.UUID) (*models.ReviewFilter, bool) {
	q := r.URL.Query()
	filter := &models.ReviewFilter{
		BusinessID: businessID,
		Platform:   q.Get("platform"),
		Sentiment:  q.Get("sentiment"),
		Search:     strings.TrimSpace(q.Get("search")),
	}

	for _, raw := range q["location_id"] {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_location_id", "Invalid location ID format", h.logger)
			return nil, false
		}
		filter.LocationIDs = append(filter.LocationIDs, id)
	}

	var ok bool
	if filter.MinRating, ok = queryInt(w, r, "min_rating", 0, h.logger); !ok {
		return nil, false
	}
	if filter.MaxRating, ok = queryInt(w, r, "max_rating", 0, h.logger); !ok {
		return nil, false
	}
	if filter.Limit, ok = queryInt(w, r, "limit", defaultReviewPageSize, h.logger); !ok {
		return nil, false
	}
	if filter.Offset, ok = queryInt(w, r, "offset", 0, h.logger); !ok {
		return nil, false
	}
	if filter.Limit == 0 || filter.Limit > maxReviewPageSize {
		filter.Limit = maxReviewPageSize
	}

	if raw := q.Get("responded"); raw != "" {
		responded, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_parameters", "responded must be true or false", h.logger)
			return nil, false
		}
		filter.Responded = &responded
	}

	if finding := audit.ScreenSQL("search", filter.Search); finding != nil {
		h.auditor.LogInjectionAttempt(r.Context(), finding.Details(filter.Search), r.RemoteAddr)
	}
	return filter, true
}

// List handles GET /api/businesses/{bid}/reviews
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	filter, ok := h.parseReviewFilter(w, r, businessID)
	if !ok {
		return
	}

	reviews, total, err := h.reviews.List(r.Context(), p.OrganizationID, p.UserID, filter)
	if err != nil {
		writeServiceError(w, err, "list reviews", h.logger)
		return
	}
	writeData(w, http.StatusOK, reviewListResponse{
		Reviews: reviews,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, h.logger)
}

// Get handles GET /api/reviews/{rid}
func (h *ReviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	reviewID, ok := ParseReviewID(w, r, h.logger)
	if !ok {
		return
	}

	review, err := h.reviews.Get(r.Context(), p.OrganizationID, p.UserID, reviewID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.auditor.LogCrossTenantAccess(r.Context(), "review", reviewID, r.RemoteAddr)
		}
		writeServiceError(w, err, "get review", h.logger)
		return
	}
	writeData(w, http.StatusOK, review, h.logger)
}

// Respond handles POST /api/reviews/{rid}/respond
// Reply text flagged as script markup is rejected since platforms display it publicly.
func (h *ReviewHandler) Respond(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	reviewID, ok := ParseReviewID(w, r, h.logger)
	if !ok {
		return
	}
	var req respondRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if finding := audit.ScreenXSS("text", req.Text); finding != nil {
		h.auditor.LogInjectionAttempt(r.Context(), finding.Details(req.Text), r.RemoteAddr)
		writeError(w, http.StatusBadRequest, "invalid_request", "Reply text contains markup", h.logger)
		return
	}

	review, err := h.reviews.Respond(r.Context(), p.OrganizationID, p.UserID, reviewID, req.Text)
	if err != nil {
		writeServiceError(w, err, "respond to review", h.logger)
		return
	}
	writeData(w, http.StatusOK, review, h.logger)
}

// Draft handles POST /api/reviews/{rid}/draft
func (h *ReviewHandler) Draft(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	reviewID, ok := ParseReviewID(w, r, h.logger)
	if !ok {
		return
	}

	text, err := h.reviews.Draft(r.Context(), p.OrganizationID, p.UserID, reviewID)
	if err != nil {
		writeServiceError(w, err, "draft reply", h.logger)
		return
	}
	writeData(w, http.StatusOK, draftResponse{Text: text}, h.logger)
}

// UpdateSentiment handles PUT /api/reviews/{rid}/sentiment
func (h *ReviewHandler) UpdateSentiment(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	reviewID, ok := ParseReviewID(w, r, h.logger)
	if !ok {
		return
	}
	var req sentimentRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if err := h.reviews.UpdateSentiment(r.Context(), p.OrganizationID, p.UserID, reviewID, req.Sentiment); err != nil {
		writeServiceError(w, err, "update sentiment", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Analytics handles GET /api/businesses/{bid}/analytics
func (h *ReviewHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	businessID, ok := ParseBusinessID(w, r, h.logger)
	if !ok {
		return
	}
	stats, err := h.reviews.Analytics(r.Context(), p.OrganizationID, p.UserID, businessID)
	if err != nil {
		writeServiceError(w, err, "load analytics", h.logger)
		return
	}
	writeData(w, http.StatusOK, stats, h.logger)
}
