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

// LocationRepository defines the interface for location data access.
type LocationRepository interface {
	Create(ctx context.Context, l *models.Location) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.Location, error)
	// GetByGoogleName finds a location by its Google Business Profile resource name.
	GetByGoogleName(ctx context.Context, name string) (*models.Location, error)
	// List returns non-deleted locations, restricted to ids when ids is non-nil.
	List(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]*models.Location, error)
	Update(ctx context.Context, l *models.Location) error
	SoftDelete(ctx context.Context, organizationID, id uuid.UUID) error
	// ListActiveByOrganization returns the IDs of every active location in the organization.
	ListActiveByOrganization(ctx context.Context, organizationID uuid.UUID) ([]uuid.UUID, error)
	// ListByGroups returns the IDs of active locations directly in any of groupIDs.
	ListByGroups(ctx context.Context, organizationID uuid.UUID, groupIDs []uuid.UUID) ([]uuid.UUID, error)
	// FilterActive returns the subset of ids that are active locations of the organization.
	FilterActive(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)
}

type locationRepository struct{}

// NewLocationRepository creates a new location repository.
func NewLocationRepository() LocationRepository {
	return &locationRepository{}
}

const locationColumns = `id, organization_id, business_id, group_id, manager_id, name, address, city, state,
	postal_code, phone, google_location_name, is_active, created_at, updated_at, deleted_at`

func scanLocation(row pgx.Row) (*models.Location, error) {
	var l models.Location
	err := row.Scan(&l.ID, &l.OrganizationID, &l.BusinessID, &l.GroupID, &l.ManagerID, &l.Name,
		&l.Address, &l.City, &l.State, &l.PostalCode, &l.Phone, &l.GoogleLocationName, &l.IsActive,
		&l.CreatedAt, &l.UpdatedAt, &l.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *locationRepository) Create(ctx context.Context, l *models.Location) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	now := time.Now()
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO locations (id, organization_id, business_id, group_id, manager_id, name, address, city,
			state, postal_code, phone, google_location_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		l.ID, l.OrganizationID, l.BusinessID, l.GroupID, l.ManagerID, l.Name, l.Address, l.City,
		l.State, l.PostalCode, l.Phone, l.GoogleLocationName, l.IsActive, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create location: %w", err)
	}
	return nil
}

func (r *locationRepository) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.Location, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	l, err := scanLocation(scope.Conn.QueryRow(ctx, `
		SELECT `+locationColumns+` FROM locations
		WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`, organizationID, id))
	if err != nil {
		return nil, notFound(err, "location")
	}
	return l, nil
}

func (r *locationRepository) GetByGoogleName(ctx context.Context, name string) (*models.Location, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	l, err := scanLocation(scope.Conn.QueryRow(ctx, `
		SELECT `+locationColumns+` FROM locations
		WHERE google_location_name = $1 AND deleted_at IS NULL
		LIMIT 1`, name))
	if err != nil {
		return nil, notFound(err, "location")
	}
	return l, nil
}

func (r *locationRepository) List(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]*models.Location, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + locationColumns + ` FROM locations
		WHERE organization_id = $1 AND deleted_at IS NULL`
	args := []any{organizationID}
	if ids != nil {
		query += ` AND id = ANY($2)`
		args = append(args, ids)
	}
	query += ` ORDER BY name`

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Location, 0)
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}
	return out, nil
}

func (r *locationRepository) Update(ctx context.Context, l *models.Location) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	l.UpdatedAt = time.Now()
	result, err := scope.Conn.Exec(ctx, `
		UPDATE locations
		SET business_id = $3, group_id = $4, manager_id = $5, name = $6, address = $7, city = $8,
		    state = $9, postal_code = $10, phone = $11, google_location_name = $12, is_active = $13,
		    updated_at = $14
		WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`,
		l.OrganizationID, l.ID, l.BusinessID, l.GroupID, l.ManagerID, l.Name, l.Address, l.City,
		l.State, l.PostalCode, l.Phone, l.GoogleLocationName, l.IsActive, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *locationRepository) SoftDelete(ctx context.Context, organizationID, id uuid.UUID) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE locations SET deleted_at = now(), is_active = false, updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL`, organizationID, id)
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *locationRepository) ListActiveByOrganization(ctx context.Context, organizationID uuid.UUID) ([]uuid.UUID, error) {
	return r.queryIDs(ctx, `
		SELECT id FROM locations
		WHERE organization_id = $1 AND is_active AND deleted_at IS NULL`, organizationID)
}

func (r *locationRepository) ListByGroups(ctx context.Context, organizationID uuid.UUID, groupIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(groupIDs) == 0 {
		return []uuid.UUID{}, nil
	}
	return r.queryIDs(ctx, `
		SELECT id FROM locations
		WHERE organization_id = $1 AND group_id = ANY($2) AND is_active AND deleted_at IS NULL`,
		organizationID, groupIDs)
}

func (r *locationRepository) FilterActive(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return []uuid.UUID{}, nil
	}
	return r.queryIDs(ctx, `
		SELECT id FROM locations
		WHERE organization_id = $1 AND id = ANY($2) AND is_active AND deleted_at IS NULL`,
		organizationID, ids)
}

func (r *locationRepository) queryIDs(ctx context.Context, query string, args ...any) ([]uuid.UUID, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query location ids: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan location id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating location ids: %w", err)
	}
	return ids, nil
}

var _ LocationRepository = (*locationRepository)(nil)
