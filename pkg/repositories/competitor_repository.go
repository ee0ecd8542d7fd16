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

// CompetitorRepository defines the interface for competitor data access.
type CompetitorRepository interface {
	// Create returns ErrConflict when the business already tracks the same platform listing.
	Create(ctx context.Context, c *models.Competitor) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.Competitor, error)
	ListByBusiness(ctx context.Context, organizationID, businessID uuid.UUID) ([]*models.Competitor, error)
	// ListAll spans organizations; use with an unscoped context.
	ListAll(ctx context.Context) ([]*models.Competitor, error)
	SoftDelete(ctx context.Context, organizationID, id uuid.UUID) error
	// RecordRating updates the competitor's rating and appends a snapshot in one transaction.
	RecordRating(ctx context.Context, c *models.Competitor, rating *float64, reviewCount int, at time.Time) error
	ListSnapshots(ctx context.Context, competitorID uuid.UUID, limit int) ([]*models.CompetitorSnapshot, error)
}

type competitorRepository struct{}

// NewCompetitorRepository creates a new competitor repository.
func NewCompetitorRepository() CompetitorRepository {
	return &competitorRepository{}
}

const competitorColumns = `id, organization_id, business_id, name, platform, external_id, website_url,
	rating::float8, review_count, last_checked_at, created_at, updated_at, deleted_at`

func scanCompetitor(row pgx.Row) (*models.Competitor, error) {
	var c models.Competitor
	err := row.Scan(&c.ID, &c.OrganizationID, &c.BusinessID, &c.Name, &c.Platform, &c.ExternalID,
		&c.WebsiteURL, &c.Rating, &c.ReviewCount, &c.LastCheckedAt, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *competitorRepository) Create(ctx context.Context, c *models.Competitor) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO competitors (id, organization_id, business_id, name, platform, external_id, website_url,
			rating, review_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		c.ID, c.OrganizationID, c.BusinessID, c.Name, c.Platform, c.ExternalID, c.WebsiteURL,
		c.Rating, c.ReviewCount, now)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create competitor: %w", err)
	}
	return nil
}

func (r *competitorRepository) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.Competitor, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	c, err := scanCompetitor(scope.Conn.QueryRow(ctx, `
		SELECT `+competitorColumns+` FROM competitors
		WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`, organizationID, id))
	if err != nil {
		return nil, notFound(err, "competitor")
	}
	return c, nil
}

func (r *competitorRepository) list(ctx context.Context, query string, args ...any) ([]*models.Competitor, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitors: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Competitor, 0)
	for rows.Next() {
		c, err := scanCompetitor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan competitor: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating competitors: %w", err)
	}
	return out, nil
}

func (r *competitorRepository) ListByBusiness(ctx context.Context, organizationID, businessID uuid.UUID) ([]*models.Competitor, error) {
	return r.list(ctx, `
		SELECT `+competitorColumns+` FROM competitors
		WHERE organization_id = $1 AND business_id = $2 AND deleted_at IS NULL
		ORDER BY name`, organizationID, businessID)
}

func (r *competitorRepository) ListAll(ctx context.Context) ([]*models.Competitor, error) {
	return r.list(ctx, `
		SELECT `+competitorColumns+` FROM competitors
		WHERE deleted_at IS NULL
		ORDER BY last_checked_at NULLS FIRST`)
}

func (r *competitorRepository) SoftDelete(ctx context.Context, organizationID, id uuid.UUID) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE competitors SET deleted_at = now(), updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`, organizationID, id)
	if err != nil {
		return fmt.Errorf("failed to delete competitor: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *competitorRepository) RecordRating(ctx context.Context, c *models.Competitor, rating *float64, reviewCount int, at time.Time) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	result, err := tx.Exec(ctx, `
		UPDATE competitors SET rating = $2, review_count = $3, last_checked_at = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, c.ID, rating, reviewCount, at)
	if err != nil {
		return fmt.Errorf("failed to update competitor rating: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO competitor_snapshots (id, organization_id, competitor_id, rating, review_count, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, uuid.New(), c.OrganizationID, c.ID, rating, reviewCount, at)
	if err != nil {
		return fmt.Errorf("failed to record competitor snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.Rating = rating
	c.ReviewCount = reviewCount
	c.LastCheckedAt = &at
	return nil
}

func (r *competitorRepository) ListSnapshots(ctx context.Context, competitorID uuid.UUID, limit int) ([]*models.CompetitorSnapshot, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, organization_id, competitor_id, rating::float8, review_count, captured_at
		FROM competitor_snapshots
		WHERE competitor_id = $1
		ORDER BY captured_at DESC
		LIMIT $2`, competitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitor snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]*models.CompetitorSnapshot, 0)
	for rows.Next() {
		var s models.CompetitorSnapshot
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.CompetitorID, &s.Rating, &s.ReviewCount, &s.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan competitor snapshot: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating competitor snapshots: %w", err)
	}
	return out, nil
}

var _ CompetitorRepository = (*competitorRepository)(nil)
