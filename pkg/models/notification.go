package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification types.
const (
	NotificationNewReviews      = "new_reviews"
	NotificationNegativeReview  = "negative_review"
	NotificationAutoReplied     = "auto_replied"
	NotificationCampaignSent    = "campaign_sent"
	NotificationSyncFailed      = "sync_failed"
	NotificationCompetitorMoved = "competitor_changed"
)

// Notification is an in-app message. A nil UserID addresses the whole organization.
type Notification struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	UserID         *uuid.UUID     `json:"user_id,omitempty"`
	BusinessID     *uuid.UUID     `json:"business_id,omitempty"`
	Type           string         `json:"type"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data,omitempty"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// IsRead reports whether the notification was read.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
