package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
)

// TenantMiddleware is a function that wraps a handler with tenant context.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ParseBusinessID extracts and validates the business ID from the request path.
// Expects path parameter: bid
func ParseBusinessID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "bid", "invalid_business_id", "Invalid business ID format", logger)
}

// ParseLocationID expects path parameter: lid
func ParseLocationID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "lid", "invalid_location_id", "Invalid location ID format", logger)
}

// ParseGroupID expects path parameter: gid
func ParseGroupID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "gid", "invalid_group_id", "Invalid location group ID format", logger)
}

// ParseUserID expects path parameter: uid
func ParseUserID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "uid", "invalid_user_id", "Invalid user ID format", logger)
}

// ParseAccessID expects path parameter: aid
func ParseAccessID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "aid", "invalid_access_id", "Invalid access grant ID format", logger)
}

// ParseReviewID expects path parameter: rid
func ParseReviewID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "rid", "invalid_review_id", "Invalid review ID format", logger)
}

// ParseCompetitorID expects path parameter: cid
func ParseCompetitorID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "cid", "invalid_competitor_id", "Invalid competitor ID format", logger)
}

// ParseCampaignID expects path parameter: cid
func ParseCampaignID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "cid", "invalid_campaign_id", "Invalid campaign ID format", logger)
}

// ParseNotificationID expects path parameter: nid
func ParseNotificationID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "nid", "invalid_notification_id", "Invalid notification ID format", logger)
}

// ParseInvitationID expects path parameter: iid
func ParseInvitationID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "iid", "invalid_invitation_id", "Invalid invitation ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorCode, errorMessage, logger)
		return uuid.Nil, false
	}
	return id, true
}

// principalFrom returns the caller resolved by the tenant middleware.
func principalFrom(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*auth.Principal, bool) {
	p, ok := auth.GetPrincipal(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", logger)
		return nil, false
	}
	return p, true
}

// queryInt parses an optional integer query parameter. Missing values return def.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int, logger *zap.Logger) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_parameters", name+" must be a non-negative integer", logger)
		return 0, false
	}
	return n, true
}
