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

// UserRepository defines the interface for user data access.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetBySubject(ctx context.Context, subject string) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, email, name, pictureURL string) error
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.User, error)
	// AttachToOrganization moves a user without an organization into organizationID with role.
	AttachToOrganization(ctx context.Context, userID, organizationID uuid.UUID, role string) error
	// UpdateRoleWithOwnerCheck atomically updates a role, returning ErrLastOwner
	// when it would demote the organization's last owner.
	UpdateRoleWithOwnerCheck(ctx context.Context, organizationID, userID uuid.UUID, newRole string) error
	// RemoveWithOwnerCheck atomically detaches a user from the organization and drops
	// their location grants, returning ErrLastOwner for the last owner.
	RemoveWithOwnerCheck(ctx context.Context, organizationID, userID uuid.UUID) error
}

type userRepository struct{}

// NewUserRepository creates a new user repository.
func NewUserRepository() UserRepository {
	return &userRepository{}
}

const userColumns = `id, organization_id, subject, email, name, picture_url, role, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.OrganizationID, &u.Subject, &u.Email, &u.Name, &u.PictureURL,
		&u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = models.RoleMember
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.OrganizationID, user.Subject, user.Email, user.Name, user.PictureURL,
		user.Role, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	user, err := scanUser(scope.Conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

func (r *userRepository) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	user, err := scanUser(scope.Conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE subject = $1`, subject))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id uuid.UUID, email, name, pictureURL string) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE users SET email = $2, name = $3, picture_url = $4, updated_at = now()
		WHERE id = $1`, id, email, name, pictureURL)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *userRepository) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.User, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE organization_id = $1
		ORDER BY created_at`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func (r *userRepository) AttachToOrganization(ctx context.Context, userID, organizationID uuid.UUID, role string) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE users SET organization_id = $2, role = $3, updated_at = now()
		WHERE id = $1 AND organization_id IS NULL`, userID, organizationID, role)
	if err != nil {
		return fmt.Errorf("failed to attach user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

// lockedRole reads the user's role and counts owners with row locks held for the transaction.
func lockedRole(ctx context.Context, tx pgx.Tx, organizationID, userID uuid.UUID) (role string, owners int, err error) {
	err = tx.QueryRow(ctx, `
		SELECT role FROM users WHERE organization_id = $1 AND id = $2 FOR UPDATE`,
		organizationID, userID).Scan(&role)
	if err != nil {
		return "", 0, notFound(err, "user")
	}

	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT id FROM users WHERE organization_id = $1 AND role = 'owner' FOR UPDATE
		) o`, organizationID).Scan(&owners)
	if err != nil {
		return "", 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return role, owners, nil
}

func (r *userRepository) UpdateRoleWithOwnerCheck(ctx context.Context, organizationID, userID uuid.UUID, newRole string) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	role, owners, err := lockedRole(ctx, tx, organizationID, userID)
	if err != nil {
		return err
	}
	if role == models.RoleOwner && newRole != models.RoleOwner && owners <= 1 {
		return apperrors.ErrLastOwner
	}

	_, err = tx.Exec(ctx, `UPDATE users SET role = $3, updated_at = now() WHERE organization_id = $1 AND id = $2`,
		organizationID, userID, newRole)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *userRepository) RemoveWithOwnerCheck(ctx context.Context, organizationID, userID uuid.UUID) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	role, owners, err := lockedRole(ctx, tx, organizationID, userID)
	if err != nil {
		return err
	}
	if role == models.RoleOwner && owners <= 1 {
		return apperrors.ErrLastOwner
	}

	if _, err := tx.Exec(ctx, `DELETE FROM location_access WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to remove location access: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE locations SET manager_id = NULL WHERE manager_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear managed locations: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE users SET organization_id = NULL, role = 'member', updated_at = now()
		WHERE organization_id = $1 AND id = $2`, organizationID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ UserRepository = (*userRepository)(nil)
