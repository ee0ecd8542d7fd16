package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
)

// NotificationRepository defines the interface for notification data access.
// A user sees notifications addressed to them and those addressed to the whole organization.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, organizationID, userID uuid.UUID, unreadOnly bool, limit int) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, organizationID, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, organizationID, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, organizationID, userID uuid.UUID) (int, error)
	Delete(ctx context.Context, organizationID, userID, id uuid.UUID) error
}

type notificationRepository struct{}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository() NotificationRepository {
	return &notificationRepository{}
}

const visibleToUser = `organization_id = $1 AND (user_id IS NULL OR user_id = $2)`

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Data == nil {
		n.Data = map[string]any{}
	}
	n.CreatedAt = time.Now()

	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal notification data: %w", err)
	}

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO notifications (id, organization_id, user_id, business_id, type, title, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.OrganizationID, n.UserID, n.BusinessID, n.Type, n.Title, n.Message, data, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) List(ctx context.Context, organizationID, userID uuid.UUID, unreadOnly bool, limit int) ([]*models.Notification, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, organization_id, user_id, business_id, type, title, message, data, read_at, created_at
		FROM notifications WHERE ` + visibleToUser
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $3`

	rows, err := scope.Conn.Query(ctx, query, organizationID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		var data []byte
		if err := rows.Scan(&n.ID, &n.OrganizationID, &n.UserID, &n.BusinessID, &n.Type, &n.Title, &n.Message,
			&data, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("failed to decode notification data: %w", err)
			}
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return out, nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, organizationID, userID uuid.UUID) (int, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	err = scope.Conn.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE `+visibleToUser+` AND read_at IS NULL`,
		organizationID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, organizationID, userID, id uuid.UUID) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, now())
		WHERE `+visibleToUser+` AND id = $3`, organizationID, userID, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, organizationID, userID uuid.UUID) (int, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return 0, err
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE notifications SET read_at = now()
		WHERE `+visibleToUser+` AND read_at IS NULL`, organizationID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (r *notificationRepository) Delete(ctx context.Context, organizationID, userID, id uuid.UUID) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM notifications WHERE `+visibleToUser+` AND id = $3`,
		organizationID, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

var _ NotificationRepository = (*notificationRepository)(nil)
