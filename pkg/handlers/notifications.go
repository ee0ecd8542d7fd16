package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

// NotificationHandler handles the caller's in-app notifications.
type NotificationHandler struct {
	notifications services.NotificationService
	logger        *zap.Logger
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(notifications services.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// RegisterRoutes registers the notification routes on the given mux.
func (h *NotificationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /api/notifications", authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("POST /api/notifications/read-all", authMiddleware.RequireAuth(tenantMiddleware(h.MarkAllRead)))
	mux.HandleFunc("POST /api/notifications/{nid}/read", authMiddleware.RequireAuth(tenantMiddleware(h.MarkRead)))
	mux.HandleFunc("DELETE /api/notifications/{nid}", authMiddleware.RequireAuth(tenantMiddleware(h.Delete)))
}

type notificationListResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	UnreadCount   int                    `json:"unread_count"`
}

type markAllReadResponse struct {
	Updated int `json:"updated"`
}

// List handles GET /api/notifications?unread=true&limit=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 50, h.logger)
	if !ok {
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	list, err := h.notifications.List(r.Context(), p.OrganizationID, p.UserID, unreadOnly, limit)
	if err != nil {
		writeServiceError(w, err, "list notifications", h.logger)
		return
	}
	unread, err := h.notifications.UnreadCount(r.Context(), p.OrganizationID, p.UserID)
	if err != nil {
		writeServiceError(w, err, "count notifications", h.logger)
		return
	}
	writeData(w, http.StatusOK, notificationListResponse{Notifications: list, UnreadCount: unread}, h.logger)
}

// MarkRead handles POST /api/notifications/{nid}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseNotificationID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(r.Context(), p.OrganizationID, p.UserID, id); err != nil {
		writeServiceError(w, err, "mark notification read", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	n, err := h.notifications.MarkAllRead(r.Context(), p.OrganizationID, p.UserID)
	if err != nil {
		writeServiceError(w, err, "mark notifications read", h.logger)
		return
	}
	writeData(w, http.StatusOK, markAllReadResponse{Updated: n}, h.logger)
}

// Delete handles DELETE /api/notifications/{nid}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := ParseNotificationID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.notifications.Delete(r.Context(), p.OrganizationID, p.UserID, id); err != nil {
		writeServiceError(w, err, "delete notification", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
