package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
)

// CampaignRepository defines the interface for campaign data access.
type CampaignRepository interface {
	Create(ctx context.Context, c *models.Campaign) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.Campaign, error)
	ListByBusiness(ctx context.Context, organizationID, businessID uuid.UUID) ([]*models.Campaign, error)
	// UpdateDraft rewrites name, message and recipients. Non-draft campaigns return ErrConflict.
	UpdateDraft(ctx context.Context, c *models.Campaign) error
	// DeleteDraft removes a draft. Non-draft campaigns return ErrConflict.
	DeleteDraft(ctx context.Context, organizationID, id uuid.UUID) error
	// MarkSending moves a draft to sending. It returns ErrConflict when the campaign is not a draft,
	// so two concurrent sends cannot both start.
	MarkSending(ctx context.Context, organizationID, id uuid.UUID) error
	Finish(ctx context.Context, organizationID, id uuid.UUID, status string, sent, failed int, at time.Time) error
}

type campaignRepository struct{}

// NewCampaignRepository creates a new campaign repository.
func NewCampaignRepository() CampaignRepository {
	return &campaignRepository{}
}

const campaignColumns = `id, organization_id, business_id, name, message, recipients, status, sent_count,
	failed_count, created_by, sent_at, created_at, updated_at`

func scanCampaign(row pgx.Row) (*models.Campaign, error) {
	var c models.Campaign
	err := row.Scan(&c.ID, &c.OrganizationID, &c.BusinessID, &c.Name, &c.Message, &c.Recipients, &c.Status,
		&c.SentCount, &c.FailedCount, &c.CreatedBy, &c.SentAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *campaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Recipients == nil {
		c.Recipients = []string{}
	}
	c.Status = models.CampaignDraft
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO campaigns (id, organization_id, business_id, name, message, recipients, status, created_by,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		c.ID, c.OrganizationID, c.BusinessID, c.Name, c.Message, c.Recipients, c.Status, c.CreatedBy, now)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *campaignRepository) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.Campaign, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	c, err := scanCampaign(scope.Conn.QueryRow(ctx, `
		SELECT `+campaignColumns+` FROM campaigns WHERE organization_id = $1 AND id = $2`, organizationID, id))
	if err != nil {
		return nil, notFound(err, "campaign")
	}
	return c, nil
}

func (r *campaignRepository) ListByBusiness(ctx context.Context, organizationID, businessID uuid.UUID) ([]*models.Campaign, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+campaignColumns+` FROM campaigns
		WHERE organization_id = $1 AND business_id = $2
		ORDER BY created_at DESC`, organizationID, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}
	return out, nil
}

// draftOnly distinguishes a missing campaign from one that is no longer a draft.
func (r *campaignRepository) draftOnly(ctx context.Context, organizationID, id uuid.UUID, affected int64) error {
	if affected > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, organizationID, id); err != nil {
		return err
	}
	return apperrors.ErrConflict
}

func (r *campaignRepository) UpdateDraft(ctx context.Context, c *models.Campaign) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	c.UpdatedAt = time.Now()
	result, err := scope.Conn.Exec(ctx, `
		UPDATE campaigns SET name = $3, message = $4, recipients = $5, updated_at = $6
		WHERE organization_id = $1 AND id = $2 AND status = 'draft'`,
		c.OrganizationID, c.ID, c.Name, c.Message, c.Recipients, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return r.draftOnly(ctx, c.OrganizationID, c.ID, result.RowsAffected())
}

func (r *campaignRepository) DeleteDraft(ctx context.Context, organizationID, id uuid.UUID) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		DELETE FROM campaigns WHERE organization_id = $1 AND id = $2 AND status = 'draft'`, organizationID, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return r.draftOnly(ctx, organizationID, id, result.RowsAffected())
}

func (r *campaignRepository) MarkSending(ctx context.Context, organizationID, id uuid.UUID) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE campaigns SET status = 'sending', updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND status = 'draft'`, organizationID, id)
	if err != nil {
		return fmt.Errorf("failed to mark campaign sending: %w", err)
	}
	return r.draftOnly(ctx, organizationID, id, result.RowsAffected())
}

func (r *campaignRepository) Finish(ctx context.Context, organizationID, id uuid.UUID, status string, sent, failed int, at time.Time) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE campaigns
		SET status = $3, sent_count = $4, failed_count = $5, sent_at = $6, updated_at = now()
		WHERE organization_id = $1 AND id = $2`, organizationID, id, status, sent, failed, at)
	if err != nil {
		return fmt.Errorf("failed to finish campaign: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

var _ CampaignRepository = (*campaignRepository)(nil)
