package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
)

// OrganizationRepository defines the interface for organization data access.
type OrganizationRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error
}

type organizationRepository struct{}

// NewOrganizationRepository creates a new organization repository.
func NewOrganizationRepository() OrganizationRepository {
	return &organizationRepository{}
}

func (r *organizationRepository) Create(ctx context.Context, org *models.Organization) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	if org.Plan == "" {
		org.Plan = models.PlanFree
	}
	now := time.Now()
	org.CreatedAt = now
	org.UpdatedAt = now

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO organizations (id, name, plan, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		org.ID, org.Name, org.Plan, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

func (r *organizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	var org models.Organization
	err = scope.Conn.QueryRow(ctx, `
		SELECT id, name, plan, created_at, updated_at
		FROM organizations WHERE id = $1`, id).
		Scan(&org.ID, &org.Name, &org.Plan, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "organization")
	}
	return &org, nil
}

func (r *organizationRepository) Update(ctx context.Context, org *models.Organization) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	org.UpdatedAt = time.Now()
	result, err := scope.Conn.Exec(ctx, `
		UPDATE organizations SET name = $2, plan = $3, updated_at = $4
		WHERE id = $1`,
		org.ID, org.Name, org.Plan, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

var _ OrganizationRepository = (*organizationRepository)(nil)
