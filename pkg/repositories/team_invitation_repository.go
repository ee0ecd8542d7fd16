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

// TeamInvitationRepository defines the interface for team invitation data access.
type TeamInvitationRepository interface {
	Create(ctx context.Context, inv *models.TeamInvitation) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.TeamInvitation, error)
	// GetByToken spans organizations; use with an unscoped context.
	GetByToken(ctx context.Context, token string) (*models.TeamInvitation, error)
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.TeamInvitation, error)
	// SetStatus moves a pending invitation to status. Non-pending invitations return ErrInvitationUsed.
	SetStatus(ctx context.Context, id uuid.UUID, status string, acceptedBy *uuid.UUID) error
}

type teamInvitationRepository struct{}

// NewTeamInvitationRepository creates a new team invitation repository.
func NewTeamInvitationRepository() TeamInvitationRepository {
	return &teamInvitationRepository{}
}

const invitationColumns = `id, organization_id, email, role, token, status, all_locations, location_ids, group_ids,
	invited_by, accepted_by, expires_at, accepted_at, created_at`

func scanInvitation(row pgx.Row) (*models.TeamInvitation, error) {
	var inv models.TeamInvitation
	err := row.Scan(&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.Token, &inv.Status,
		&inv.AllLocations, &inv.LocationIDs, &inv.GroupIDs, &inv.InvitedBy, &inv.AcceptedBy, &inv.ExpiresAt,
		&inv.AcceptedAt, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *teamInvitationRepository) Create(ctx context.Context, inv *models.TeamInvitation) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.LocationIDs == nil {
		inv.LocationIDs = []uuid.UUID{}
	}
	if inv.GroupIDs == nil {
		inv.GroupIDs = []uuid.UUID{}
	}
	inv.Status = models.InvitationPending
	inv.CreatedAt = time.Now()

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO team_invitations (id, organization_id, email, role, token, status, all_locations,
			location_ids, group_ids, invited_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inv.ID, inv.OrganizationID, inv.Email, inv.Role, inv.Token, inv.Status, inv.AllLocations,
		inv.LocationIDs, inv.GroupIDs, inv.InvitedBy, inv.ExpiresAt, inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

func (r *teamInvitationRepository) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.TeamInvitation, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	inv, err := scanInvitation(scope.Conn.QueryRow(ctx, `
		SELECT `+invitationColumns+` FROM team_invitations
		WHERE organization_id = $1 AND id = $2`, organizationID, id))
	if err != nil {
		return nil, notFound(err, "invitation")
	}
	return inv, nil
}

func (r *teamInvitationRepository) GetByToken(ctx context.Context, token string) (*models.TeamInvitation, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	inv, err := scanInvitation(scope.Conn.QueryRow(ctx, `
		SELECT `+invitationColumns+` FROM team_invitations WHERE token = $1`, token))
	if err != nil {
		return nil, notFound(err, "invitation")
	}
	return inv, nil
}

func (r *teamInvitationRepository) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.TeamInvitation, error) {
	scope, err := scopeConn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+invitationColumns+` FROM team_invitations
		WHERE organization_id = $1
		ORDER BY created_at DESC`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	out := make([]*models.TeamInvitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invitations: %w", err)
	}
	return out, nil
}

func (r *teamInvitationRepository) SetStatus(ctx context.Context, id uuid.UUID, status string, acceptedBy *uuid.UUID) error {
	scope, err := scopeConn(ctx)
	if err != nil {
		return err
	}

	var acceptedAt *time.Time
	if status == models.InvitationAccepted {
		now := time.Now()
		acceptedAt = &now
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE team_invitations SET status = $2, accepted_by = $3, accepted_at = $4
		WHERE id = $1 AND status = 'pending'`, id, status, acceptedBy, acceptedAt)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrInvitationUsed
	}
	return nil
}

var _ TeamInvitationRepository = (*teamInvitationRepository)(nil)
