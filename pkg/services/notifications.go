package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

const defaultNotificationLimit = 50

// NotificationService manages in-app notifications.
type NotificationService interface {
	// Notify stores a notification. Failures are logged and swallowed since notifications
	// are a side effect of the operation that raised them.
	Notify(ctx context.Context, n *models.Notification)
	List(ctx context.Context, organizationID, userID uuid.UUID, unreadOnly bool, limit int) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, organizationID, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, organizationID, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, organizationID, userID uuid.UUID) (int, error)
	Delete(ctx context.Context, organizationID, userID, id uuid.UUID) error
}

type notificationService struct {
	repo   repositories.NotificationRepository
	logger *zap.Logger
}

// NewNotificationService creates a new notification service.
func NewNotificationService(repo repositories.NotificationRepository, logger *zap.Logger) NotificationService {
	return &notificationService{repo: repo, logger: logger.Named("notifications")}
}

func (s *notificationService) Notify(ctx context.Context, n *models.Notification) {
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error("Failed to store notification",
			zap.String("organization_id", n.OrganizationID.String()),
			zap.String("type", n.Type),
			zap.Error(err))
	}
}

func (s *notificationService) List(ctx context.Context, organizationID, userID uuid.UUID, unreadOnly bool, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}
	return s.repo.List(ctx, organizationID, userID, unreadOnly, limit)
}

func (s *notificationService) UnreadCount(ctx context.Context, organizationID, userID uuid.UUID) (int, error) {
	return s.repo.UnreadCount(ctx, organizationID, userID)
}

func (s *notificationService) MarkRead(ctx context.Context, organizationID, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, organizationID, userID, id)
}

func (s *notificationService) MarkAllRead(ctx context.Context, organizationID, userID uuid.UUID) (int, error) {
	return s.repo.MarkAllRead(ctx, organizationID, userID)
}

func (s *notificationService) Delete(ctx context.Context, organizationID, userID, id uuid.UUID) error {
	return s.repo.Delete(ctx, organizationID, userID, id)
}

var _ NotificationService = (*notificationService)(nil)
