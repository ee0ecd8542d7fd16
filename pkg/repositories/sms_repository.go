package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
)

// SmsRepository defines the interface for outbound SMS records.
type SmsRepository interface {
	Create(ctx context.Context, m *models.SmsMessage) error
	// CountSentSince counts messages with status sent since the given instant.
	CountSentSince(ctx context.Context, organizationID uuid.UUID, since time.Time) (int, error)
	ListByCampaign(ctx context.Context, organizationID, campaignID uuid.UUID) ([]*models.SmsMessage, error)
}

type smsRepository struct{}

// NewSmsRepository creates a new SMS repository.
func NewSmsRepository() SmsRepository {
	return &smsRepository{}
}

func (r *smsRepository) Create(ctx context.Context, m *models.SmsMessage) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now()

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO sms_messages (id, organization_id, business_id, campaign_id, to_number, body, status,
			provider_message_id, error_message, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.OrganizationID, m.BusinessID, m.CampaignID, m.ToNumber, m.Body, m.Status,
		m.ProviderMessageID, m.ErrorMessage, m.SentAt, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record sms message: %w", err)
	}
	return nil
}

func (r *smsRepository) CountSentSince(ctx context.Context, organizationID uuid.UUID, since time.Time) (int, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return 0, err
	}

	var n int
	err = scope.Conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM sms_messages
		WHERE organization_id = $1 AND status = 'sent' AND sent_at >= $2`, organizationID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sms messages: %w", err)
	}
	return n, nil
}

func (r *smsRepository) ListByCampaign(ctx context.Context, organizationID, campaignID uuid.UUID) ([]*models.SmsMessage, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, organization_id, business_id, campaign_id, to_number, body, status, provider_message_id,
		       error_message, sent_at, created_at
		FROM sms_messages
		WHERE organization_id = $1 AND campaign_id = $2
		ORDER BY created_at`, organizationID, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sms messages: %w", err)
	}
	defer rows.Close()

	out := make([]*models.SmsMessage, 0)
	for rows.Next() {
		var m models.SmsMessage
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.BusinessID, &m.CampaignID, &m.ToNumber, &m.Body,
			&m.Status, &m.ProviderMessageID, &m.ErrorMessage, &m.SentAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sms message: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sms messages: %w", err)
	}
	return out, nil
}

var _ SmsRepository = (*smsRepository)(nil)
