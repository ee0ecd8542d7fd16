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

// LocationGroupRepository defines the interface for location group data access.
type LocationGroupRepository interface {
	Create(ctx context.Context, g *models.LocationGroup) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.LocationGroup, error)
	List(ctx context.Context, organizationID uuid.UUID) ([]*models.LocationGroup, error)
	ListChildren(ctx context.Context, organizationID, parentID uuid.UUID) ([]*models.LocationGroup, error)
	Rename(ctx context.Context, organizationID, id uuid.UUID, name string) error
	// Move re-parents the group at level and shifts every descendant's level to match.
	// Callers must reject moves under the group's own subtree first.
	Move(ctx context.Context, organizationID, id uuid.UUID, parentID *uuid.UUID, level int) error
	// Delete removes the group, re-parents its children to its parent and ungroups its locations.
	Delete(ctx context.Context, organizationID, id uuid.UUID) error
}

type locationGroupRepository struct{}

// NewLocationGroupRepository creates a new location group repository.
func NewLocationGroupRepository() LocationGroupRepository {
	return &locationGroupRepository{}
}

const groupColumns = `id, organization_id, parent_id, name, level, created_at, updated_at`

func scanGroup(row pgx.Row) (*models.LocationGroup, error) {
	var g models.LocationGroup
	if err := row.Scan(&g.ID, &g.OrganizationID, &g.ParentID, &g.Name, &g.Level, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *locationGroupRepository) Create(ctx context.Context, g *models.LocationGroup) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO location_groups (`+groupColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.OrganizationID, g.ParentID, g.Name, g.Level, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create location group: %w", err)
	}
	return nil
}

func (r *locationGroupRepository) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.LocationGroup, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	g, err := scanGroup(scope.Conn.QueryRow(ctx, `
		SELECT `+groupColumns+` FROM location_groups
		WHERE organization_id = $1 AND id = $2`, organizationID, id))
	if err != nil {
		return nil, notFound(err, "location group")
	}
	return g, nil
}

func (r *locationGroupRepository) List(ctx context.Context, organizationID uuid.UUID) ([]*models.LocationGroup, error) {
	return r.query(ctx, `
		SELECT `+groupColumns+` FROM location_groups
		WHERE organization_id = $1
		ORDER BY level, name`, organizationID)
}

func (r *locationGroupRepository) ListChildren(ctx context.Context, organizationID, parentID uuid.UUID) ([]*models.LocationGroup, error) {
	return r.query(ctx, `
		SELECT `+groupColumns+` FROM location_groups
		WHERE organization_id = $1 AND parent_id = $2
		ORDER BY name`, organizationID, parentID)
}

func (r *locationGroupRepository) query(ctx context.Context, query string, args ...any) ([]*models.LocationGroup, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list location groups: %w", err)
	}
	defer rows.Close()

	groups := make([]*models.LocationGroup, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating location groups: %w", err)
	}
	return groups, nil
}

func (r *locationGroupRepository) Rename(ctx context.Context, organizationID, id uuid.UUID, name string) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE location_groups SET name = $3, updated_at = now()
		WHERE organization_id = $1 AND id = $2`, organizationID, id, name)
	if err != nil {
		return fmt.Errorf("failed to rename location group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// relevelSubtree sets the level of every descendant of id from id's current level.
// The CYCLE clause stops the walk on corrupt parent data.
const relevelSubtree = `
	WITH RECURSIVE subtree(id, lvl) AS (
		SELECT id, level FROM location_groups WHERE id = $1
		UNION ALL
		SELECT g.id, s.lvl + 1
		FROM location_groups g
		JOIN subtree s ON g.parent_id = s.id
	) CYCLE id SET is_cycle USING path
	UPDATE location_groups g
	SET level = s.lvl, updated_at = now()
	FROM subtree s
	WHERE g.id = s.id AND NOT s.is_cycle AND g.level <> s.lvl`

func (r *locationGroupRepository) Move(ctx context.Context, organizationID, id uuid.UUID, parentID *uuid.UUID, level int) error {
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
		UPDATE location_groups SET parent_id = $3, level = $4, updated_at = now()
		WHERE organization_id = $1 AND id = $2`, organizationID, id, parentID, level)
	if err != nil {
		return fmt.Errorf("failed to move location group: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if _, err := tx.Exec(ctx, relevelSubtree, id); err != nil {
		return fmt.Errorf("failed to update group levels: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *locationGroupRepository) Delete(ctx context.Context, organizationID, id uuid.UUID) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	var parentID *uuid.UUID
	var level int
	err = tx.QueryRow(ctx, `
		SELECT parent_id, level FROM location_groups
		WHERE organization_id = $1 AND id = $2 FOR UPDATE`, organizationID, id).Scan(&parentID, &level)
	if err != nil {
		return notFound(err, "location group")
	}

	rows, err := tx.Query(ctx, `
		UPDATE location_groups SET parent_id = $2, level = $3, updated_at = now()
		WHERE parent_id = $1
		RETURNING id`, id, parentID, level)
	if err != nil {
		return fmt.Errorf("failed to re-parent child groups: %w", err)
	}
	children, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("failed to re-parent child groups: %w", err)
	}
	for _, child := range children {
		if _, err := tx.Exec(ctx, relevelSubtree, child); err != nil {
			return fmt.Errorf("failed to update group levels: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE locations SET group_id = NULL, updated_at = now() WHERE group_id = $1`, id); err != nil {
		return fmt.Errorf("failed to ungroup locations: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM location_groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete location group: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ LocationGroupRepository = (*locationGroupRepository)(nil)
