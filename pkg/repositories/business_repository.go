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

// BusinessRepository defines the interface for business data access.
// Soft-deleted businesses are invisible to every read.
type BusinessRepository interface {
	Create(ctx context.Context, b *models.Business) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.Business, error)
	List(ctx context.Context, organizationID uuid.UUID) ([]*models.Business, error)
	Update(ctx context.Context, b *models.Business) error
	SoftDelete(ctx context.Context, organizationID, id uuid.UUID) error
}

type businessRepository struct{}

// NewBusinessRepository creates a new business repository.
func NewBusinessRepository() BusinessRepository {
	return &businessRepository{}
}

const businessColumns = `id, organization_id, name, category, website, phone, address, created_at, updated_at, deleted_at`

func scanBusiness(row pgx.Row) (*models.Business, error) {
	var b models.Business
	err := row.Scan(&b.ID, &b.OrganizationID, &b.Name, &b.Category, &b.Website, &b.Phone,
		&b.Address, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *businessRepository) Create(ctx context.Context, b *models.Business) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO businesses (id, organization_id, name, category, website, phone, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.OrganizationID, b.Name, b.Category, b.Website, b.Phone, b.Address, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create business: %w", err)
	}
	return nil
}

func (r *businessRepository) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.Business, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	b, err := scanBusiness(scope.Conn.QueryRow(ctx, `
		SELECT `+businessColumns+` FROM businesses
		WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`, organizationID, id))
	if err != nil {
		return nil, notFound(err, "business")
	}
	return b, nil
}

func (r *businessRepository) List(ctx context.Context, organizationID uuid.UUID) ([]*models.Business, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+businessColumns+` FROM businesses
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY name`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Business, 0)
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan business: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating businesses: %w", err)
	}
	return out, nil
}

func (r *businessRepository) Update(ctx context.Context, b *models.Business) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	b.UpdatedAt = time.Now()
	result, err := scope.Conn.Exec(ctx, `
		UPDATE businesses
		SET name = $3, category = $4, website = $5, phone = $6, address = $7, updated_at = $8
		WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`,
		b.OrganizationID, b.ID, b.Name, b.Category, b.Website, b.Phone, b.Address, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update business: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *businessRepository) SoftDelete(ctx context.Context, organizationID, id uuid.UUID) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE businesses SET deleted_at = now(), updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`, organizationID, id)
	if err != nil {
		return fmt.Errorf("failed to delete business: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

var _ BusinessRepository = (*businessRepository)(nil)
