package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign statuses. Only drafts can be edited, deleted or sent.
const (
	CampaignDraft     = "draft"
	CampaignSending   = "sending"
	CampaignCompleted = "completed"
	CampaignFailed    = "failed"
)

// Campaign is a bulk SMS sent to a list of recipients.
type Campaign struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	BusinessID     uuid.UUID  `json:"business_id"`
	Name           string     `json:"name"`
	Message        string     `json:"message"`
	Recipients     []string   `json:"recipients"`
	Status         string     `json:"status"`
	SentCount      int        `json:"sent_count"`
	FailedCount    int        `json:"failed_count"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SMS statuses.
const (
	SmsQueued = "queued"
	SmsSent   = "sent"
	SmsFailed = "failed"
)

// SmsMessage is one outbound text, sent alone or as part of a campaign.
type SmsMessage struct {
	ID                uuid.UUID  `json:"id"`
	OrganizationID    uuid.UUID  `json:"organization_id"`
	BusinessID        uuid.UUID  `json:"business_id"`
	CampaignID        *uuid.UUID `json:"campaign_id,omitempty"`
	ToNumber          string     `json:"to_number"`
	Body              string     `json:"body"`
	Status            string     `json:"status"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// SmsUsage is the month-to-date SMS consumption against the plan quota.
type SmsUsage struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Since     time.Time `json:"since"`
}
