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

// LocationAccessRepository defines the interface for location grant data access.
type LocationAccessRepository interface {
	ListByUser(ctx context.Context, organizationID, userID uuid.UUID) ([]*models.LocationAccess, error)
	// Grant inserts a grant. Granting something the user already holds returns the existing row.
	Grant(ctx context.Context, access *models.LocationAccess) error
	// ReplaceWithAll deletes every grant of the user and inserts a single "all" grant, atomically.
	ReplaceWithAll(ctx context.Context, organizationID, userID uuid.UUID) (*models.LocationAccess, error)
	Revoke(ctx context.Context, organizationID, userID, id uuid.UUID) error
}

type locationAccessRepository struct{}

// NewLocationAccessRepository creates a new location access repository.
func NewLocationAccessRepository() LocationAccessRepository {
	return &locationAccessRepository{}
}

const accessColumns = `id, organization_id, user_id, access_type, location_id, group_id, created_at`

func scanAccess(row pgx.Row) (*models.LocationAccess, error) {
	var a models.LocationAccess
	if err := row.Scan(&a.ID, &a.OrganizationID, &a.UserID, &a.AccessType, &a.LocationID, &a.GroupID, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *locationAccessRepository) ListByUser(ctx context.Context, organizationID, userID uuid.UUID) ([]*models.LocationAccess, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+accessColumns+` FROM location_access
		WHERE organization_id = $1 AND user_id = $2
		ORDER BY created_at`, organizationID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list location access: %w", err)
	}
	defer rows.Close()

	grants := make([]*models.LocationAccess, 0)
	for rows.Next() {
		a, err := scanAccess(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location access: %w", err)
		}
		grants = append(grants, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating location access: %w", err)
	}
	return grants, nil
}

func (r *locationAccessRepository) Grant(ctx context.Context, access *models.LocationAccess) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	if access.ID == uuid.Nil {
		access.ID = uuid.New()
	}
	access.CreatedAt = time.Now()

	// ON CONFLICT DO UPDATE with a no-op assignment so RETURNING yields the existing row.
	err = scope.Conn.QueryRow(ctx, `
		INSERT INTO location_access (`+accessColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, access_type, COALESCE(location_id, group_id, '00000000-0000-0000-0000-000000000000'::uuid))
		DO UPDATE SET access_type = EXCLUDED.access_type
		RETURNING id, created_at`,
		access.ID, access.OrganizationID, access.UserID, access.AccessType, access.LocationID,
		access.GroupID, access.CreatedAt).Scan(&access.ID, &access.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to grant location access: %w", err)
	}
	return nil
}

func (r *locationAccessRepository) ReplaceWithAll(ctx context.Context, organizationID, userID uuid.UUID) (*models.LocationAccess, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if _, err := tx.Exec(ctx, `DELETE FROM location_access WHERE organization_id = $1 AND user_id = $2`,
		organizationID, userID); err != nil {
		return nil, fmt.Errorf("failed to clear location access: %w", err)
	}

	access := &models.LocationAccess{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		UserID:         userID,
		AccessType:     models.AccessAll,
		CreatedAt:      time.Now(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO location_access (`+accessColumns+`)
		VALUES ($1, $2, $3, $4, NULL, NULL, $5)`,
		access.ID, access.OrganizationID, access.UserID, access.AccessType, access.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to grant all locations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return access, nil
}

func (r *locationAccessRepository) Revoke(ctx context.Context, organizationID, userID, id uuid.UUID) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		DELETE FROM location_access WHERE organization_id = $1 AND user_id = $2 AND id = $3`,
		organizationID, userID, id)
	if err != nil {
		return fmt.Errorf("failed to revoke location access: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

var _ LocationAccessRepository = (*locationAccessRepository)(nil)
