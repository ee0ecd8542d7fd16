package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
)

// AISettingsRepository defines the interface for per-business AI settings.
type AISettingsRepository interface {
	// Get returns ErrNotFound when the business has no stored settings.
	Get(ctx context.Context, organizationID, businessID uuid.UUID) (*models.AISettings, error)
	Upsert(ctx context.Context, s *models.AISettings) error
	// ListAutoReplyEnabled spans organizations; use with an unscoped context.
	ListAutoReplyEnabled(ctx context.Context) ([]*models.AISettings, error)
}

type aiSettingsRepository struct{}

// NewAISettingsRepository creates a new AI settings repository.
func NewAISettingsRepository() AISettingsRepository {
	return &aiSettingsRepository{}
}

const aiSettingsColumns = `business_id, organization_id, auto_reply_enabled, min_rating, platforms, tone, signature,
	custom_instructions, created_at, updated_at`

func scanAISettings(row pgx.Row) (*models.AISettings, error) {
	var s models.AISettings
	err := row.Scan(&s.BusinessID, &s.OrganizationID, &s.AutoReplyEnabled, &s.MinRating, &s.Platforms, &s.Tone,
		&s.Signature, &s.CustomInstructions, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *aiSettingsRepository) Get(ctx context.Context, organizationID, businessID uuid.UUID) (*models.AISettings, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	s, err := scanAISettings(scope.Conn.QueryRow(ctx, `
		SELECT `+aiSettingsColumns+` FROM ai_settings
		WHERE organization_id = $1 AND business_id = $2`, organizationID, businessID))
	if err != nil {
		return nil, notFound(err, "ai settings")
	}
	return s, nil
}

func (r *aiSettingsRepository) Upsert(ctx context.Context, s *models.AISettings) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	if s.Platforms == nil {
		s.Platforms = []string{}
	}
	now := time.Now()
	s.UpdatedAt = now

	err = scope.Conn.QueryRow(ctx, `
		INSERT INTO ai_settings (`+aiSettingsColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (business_id) DO UPDATE
		SET auto_reply_enabled = EXCLUDED.auto_reply_enabled,
		    min_rating = EXCLUDED.min_rating,
		    platforms = EXCLUDED.platforms,
		    tone = EXCLUDED.tone,
		    signature = EXCLUDED.signature,
		    custom_instructions = EXCLUDED.custom_instructions,
		    updated_at = EXCLUDED.updated_at
		RETURNING created_at`,
		s.BusinessID, s.OrganizationID, s.AutoReplyEnabled, s.MinRating, s.Platforms, s.Tone, s.Signature,
		s.CustomInstructions, now).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save ai settings: %w", err)
	}
	return nil
}

func (r *aiSettingsRepository) ListAutoReplyEnabled(ctx context.Context) ([]*models.AISettings, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT s.business_id, s.organization_id, s.auto_reply_enabled, s.min_rating, s.platforms, s.tone,
		       s.signature, s.custom_instructions, s.created_at, s.updated_at
		FROM ai_settings s
		JOIN businesses b ON b.id = s.business_id AND b.deleted_at IS NULL
		WHERE s.auto_reply_enabled`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ai settings: %w", err)
	}
	defer rows.Close()

	out := make([]*models.AISettings, 0)
	for rows.Next() {
		s, err := scanAISettings(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ai settings: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ai settings: %w", err)
	}
	return out, nil
}

var _ AISettingsRepository = (*aiSettingsRepository)(nil)
