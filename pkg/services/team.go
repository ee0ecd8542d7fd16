package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/database"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

// InvitationTTL is how long an invitation can be accepted.
const InvitationTTL = 7 * 24 * time.Hour

// TeamService manages organization members and invitations.
type TeamService interface {
	Invite(ctx context.Context, organizationID, inviterID uuid.UUID, inv *models.TeamInvitation) (*models.TeamInvitation, error)
	ListInvitations(ctx context.Context, organizationID uuid.UUID) ([]*models.TeamInvitation, error)
	RevokeInvitation(ctx context.Context, organizationID, id uuid.UUID) error
	// Accept joins userID to the inviting organization. The caller's context is unscoped
	// since the user has no organization yet.
	Accept(ctx context.Context, userID uuid.UUID, token string) (*models.TeamInvitation, error)
	Members(ctx context.Context, organizationID uuid.UUID) ([]*models.User, error)
	ChangeRole(ctx context.Context, organizationID, actorID, userID uuid.UUID, role string) error
	RemoveMember(ctx context.Context, organizationID, actorID, userID uuid.UUID) error
}

type teamService struct {
	userRepo       repositories.UserRepository
	invitationRepo repositories.TeamInvitationRepository
	locationRepo   repositories.LocationRepository
	groupRepo      repositories.LocationGroupRepository
	access         LocationAccessService
	getTenantCtx   TenantContextFunc
	withTx         func(ctx context.Context, fn func(ctx context.Context) error) error
	logger         *zap.Logger
	now            func() time.Time
}

// NewTeamService creates a new team service.
func NewTeamService(
	userRepo repositories.UserRepository,
	invitationRepo repositories.TeamInvitationRepository,
	locationRepo repositories.LocationRepository,
	groupRepo repositories.LocationGroupRepository,
	access LocationAccessService,
	getTenantCtx TenantContextFunc,
	logger *zap.Logger,
) TeamService {
	return &teamService{
		userRepo:       userRepo,
		invitationRepo: invitationRepo,
		locationRepo:   locationRepo,
		groupRepo:      groupRepo,
		access:         access,
		getTenantCtx:   getTenantCtx,
		withTx:         database.InTx,
		logger:         logger.Named("team"),
		now:            time.Now,
	}
}

func newInvitationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// requireOwnerFor rejects role changes involving owners unless the actor is an owner.
func (s *teamService) requireOwnerFor(ctx context.Context, organizationID, actorID uuid.UUID, roles ...string) error {
	touchesOwner := false
	for _, r := range roles {
		if r == models.RoleOwner {
			touchesOwner = true
		}
	}
	if !touchesOwner {
		return nil
	}
	actor, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.OrganizationID == nil || *actor.OrganizationID != organizationID || actor.Role != models.RoleOwner {
		return fmt.Errorf("%w: only owners can manage owners", apperrors.ErrForbidden)
	}
	return nil
}

func (s *teamService) Invite(ctx context.Context, organizationID, inviterID uuid.UUID, inv *models.TeamInvitation) (*models.TeamInvitation, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(inv.Email))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid email address", apperrors.ErrInvalidInput)
	}
	if inv.Role == "" {
		inv.Role = models.RoleMember
	}
	if !models.IsValidRole(inv.Role) {
		return nil, apperrors.ErrInvalidRole
	}
	if err := s.requireOwnerFor(ctx, organizationID, inviterID, inv.Role); err != nil {
		return nil, err
	}

	for _, id := range inv.LocationIDs {
		if _, err := s.locationRepo.GetByID(ctx, organizationID, id); err != nil {
			return nil, fmt.Errorf("location %s: %w", id, err)
		}
	}
	for _, id := range inv.GroupIDs {
		if _, err := s.groupRepo.GetByID(ctx, organizationID, id); err != nil {
			return nil, fmt.Errorf("location group %s: %w", id, err)
		}
	}

	token, err := newInvitationToken()
	if err != nil {
		return nil, err
	}
	inv.OrganizationID = organizationID
	inv.Email = strings.ToLower(addr.Address)
	inv.Token = token
	inv.Status = models.InvitationPending
	inv.InvitedBy = &inviterID
	inv.ExpiresAt = s.now().Add(InvitationTTL)

	if err := s.invitationRepo.Create(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info("Invitation created",
		zap.String("organization_id", organizationID.String()),
		zap.String("invitation_id", inv.ID.String()),
		zap.String("role", inv.Role))
	return inv, nil
}

func (s *teamService) ListInvitations(ctx context.Context, organizationID uuid.UUID) ([]*models.TeamInvitation, error) {
	return s.invitationRepo.ListByOrganization(ctx, organizationID)
}

func (s *teamService) RevokeInvitation(ctx context.Context, organizationID, id uuid.UUID) error {
	if _, err := s.invitationRepo.GetByID(ctx, organizationID, id); err != nil {
		return err
	}
	return s.invitationRepo.SetStatus(ctx, id, models.InvitationRevoked, nil)
}

func (s *teamService) Accept(ctx context.Context, userID uuid.UUID, token string) (*models.TeamInvitation, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: invitation token is required", apperrors.ErrInvalidInput)
	}
	inv, err := s.invitationRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvitationPending {
		return nil, apperrors.ErrInvitationUsed
	}
	if inv.IsExpired(s.now()) {
		if err := s.invitationRepo.SetStatus(ctx, inv.ID, models.InvitationExpired, nil); err != nil && !errors.Is(err, apperrors.ErrInvitationUsed) {
			s.logger.Warn("Failed to expire invitation", zap.String("invitation_id", inv.ID.String()), zap.Error(err))
		}
		return nil, apperrors.ErrInvitationExpired
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.OrganizationID != nil {
		return nil, fmt.Errorf("%w: user already belongs to an organization", apperrors.ErrConflict)
	}
	if user.Email != "" && !strings.EqualFold(user.Email, inv.Email) {
		return nil, fmt.Errorf("%w: invitation was sent to another email address", apperrors.ErrForbidden)
	}

	err = inTenant(ctx, s.getTenantCtx, inv.OrganizationID, func(ctx context.Context) error {
		return s.withTx(ctx, func(ctx context.Context) error {
			// Claim the invitation first so a concurrent accept fails before touching the user.
			if err := s.invitationRepo.SetStatus(ctx, inv.ID, models.InvitationAccepted, &userID); err != nil {
				return err
			}
			if err := s.userRepo.AttachToOrganization(ctx, userID, inv.OrganizationID, inv.Role); err != nil {
				return err
			}
			return s.applyGrants(ctx, inv, userID)
		})
	})
	if err != nil {
		return nil, err
	}

	inv.Status = models.InvitationAccepted
	inv.AcceptedBy = &userID
	s.logger.Info("Invitation accepted",
		zap.String("organization_id", inv.OrganizationID.String()),
		zap.String("invitation_id", inv.ID.String()),
		zap.String("user_id", userID.String()))
	return inv, nil
}

func (s *teamService) applyGrants(ctx context.Context, inv *models.TeamInvitation, userID uuid.UUID) error {
	if inv.AllLocations {
		_, err := s.access.AssignAllLocations(ctx, inv.OrganizationID, userID)
		return err
	}
	for _, id := range inv.LocationIDs {
		if _, err := s.access.GrantLocation(ctx, inv.OrganizationID, userID, id); err != nil {
			// Locations deleted since the invite are skipped.
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return err
		}
	}
	for _, id := range inv.GroupIDs {
		if _, err := s.access.GrantGroup(ctx, inv.OrganizationID, userID, id); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}

func (s *teamService) Members(ctx context.Context, organizationID uuid.UUID) ([]*models.User, error) {
	return s.userRepo.ListByOrganization(ctx, organizationID)
}

func (s *teamService) ChangeRole(ctx context.Context, organizationID, actorID, userID uuid.UUID, role string) error {
	if !models.IsValidRole(role) {
		return apperrors.ErrInvalidRole
	}
	target, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if target.OrganizationID == nil || *target.OrganizationID != organizationID {
		return apperrors.ErrNotFound
	}
	if err := s.requireOwnerFor(ctx, organizationID, actorID, role, target.Role); err != nil {
		return err
	}
	return s.userRepo.UpdateRoleWithOwnerCheck(ctx, organizationID, userID, role)
}

func (s *teamService) RemoveMember(ctx context.Context, organizationID, actorID, userID uuid.UUID) error {
	target, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if target.OrganizationID == nil || *target.OrganizationID != organizationID {
		return apperrors.ErrNotFound
	}
	if err := s.requireOwnerFor(ctx, organizationID, actorID, target.Role); err != nil {
		return err
	}
	if err := s.userRepo.RemoveWithOwnerCheck(ctx, organizationID, userID); err != nil {
		return err
	}
	s.logger.Info("Member removed",
		zap.String("organization_id", organizationID.String()),
		zap.String("user_id", userID.String()))
	return nil
}

var _ TeamService = (*teamService)(nil)
