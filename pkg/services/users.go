package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

// Profile is the signed-in user with their organization and visible locations.
type Profile struct {
	User         *models.User         `json:"user"`
	Organization *models.Organization `json:"organization,omitempty"`
	LocationIDs  []uuid.UUID          `json:"location_ids"`
}

// UserService provisions users from identity provider claims.
type UserService interface {
	// ProvisionFromClaims creates the user on first sign-in and gives users without an
	// organization either the invited one (when invitationToken is set) or a new one they own.
	// It is idempotent and runs on an unscoped context.
	ProvisionFromClaims(ctx context.Context, claims *auth.Claims, invitationToken string) (*Profile, error)
	// AcceptInvitation joins the caller to the inviting organization. Callers that already
	// belong to an organization get ErrConflict.
	AcceptInvitation(ctx context.Context, claims *auth.Claims, token string) (*Profile, error)
	Me(ctx context.Context, userID uuid.UUID) (*Profile, error)
	// ResolvePrincipal maps an identity subject to a principal. Users without an
	// organization resolve to ErrNotFound.
	ResolvePrincipal(ctx context.Context, subject string) (*auth.Principal, error)
}

type userService struct {
	userRepo     repositories.UserRepository
	orgRepo      repositories.OrganizationRepository
	team         TeamService
	access       LocationAccessService
	getTenantCtx TenantContextFunc
	logger       *zap.Logger
}

// NewUserService creates a new user service.
func NewUserService(
	userRepo repositories.UserRepository,
	orgRepo repositories.OrganizationRepository,
	team TeamService,
	access LocationAccessService,
	getTenantCtx TenantContextFunc,
	logger *zap.Logger,
) UserService {
	return &userService{
		userRepo:     userRepo,
		orgRepo:      orgRepo,
		team:         team,
		access:       access,
		getTenantCtx: getTenantCtx,
		logger:       logger.Named("users"),
	}
}

func (s *userService) ProvisionFromClaims(ctx context.Context, claims *auth.Claims, invitationToken string) (*Profile, error) {
	user, err := s.ensureUser(ctx, claims)
	if err != nil {
		return nil, err
	}

	if user.OrganizationID == nil {
		if invitationToken != "" {
			if _, err := s.team.Accept(ctx, user.ID, invitationToken); err != nil {
				return nil, err
			}
		} else if err := s.createOrganization(ctx, user); err != nil {
			return nil, err
		}
	}
	return s.Me(ctx, user.ID)
}

func (s *userService) AcceptInvitation(ctx context.Context, claims *auth.Claims, token string) (*Profile, error) {
	user, err := s.ensureUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	if _, err := s.team.Accept(ctx, user.ID, token); err != nil {
		return nil, err
	}
	return s.Me(ctx, user.ID)
}

// ensureUser finds the user for the token subject, creating it or refreshing its profile.
func (s *userService) ensureUser(ctx context.Context, claims *auth.Claims) (*models.User, error) {
	if claims == nil || claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", apperrors.ErrInvalidInput)
	}

	user, err := s.userRepo.GetBySubject(ctx, claims.Subject)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		user = &models.User{
			Subject:    claims.Subject,
			Email:      strings.ToLower(claims.Email),
			Name:       claims.Name,
			PictureURL: claims.Picture,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info("User created", zap.String("user_id", user.ID.String()))
	case err != nil:
		return nil, err
	default:
		email := strings.ToLower(claims.Email)
		if (email != "" && email != user.Email) || (claims.Name != "" && claims.Name != user.Name) || claims.Picture != user.PictureURL {
			email = firstNonEmpty(email, user.Email)
			name := firstNonEmpty(claims.Name, user.Name)
			if err := s.userRepo.UpdateProfile(ctx, user.ID, email, name, claims.Picture); err != nil {
				return nil, err
			}
			user.Email, user.Name, user.PictureURL = email, name, claims.Picture
		}
	}
	return user, nil
}

func (s *userService) createOrganization(ctx context.Context, user *models.User) error {
	name := firstNonEmpty(user.Name, user.Email, "My")
	org := &models.Organization{Name: name + "'s organization", Plan: models.PlanFree}
	if err := s.orgRepo.Create(ctx, org); err != nil {
		return err
	}
	if err := s.userRepo.AttachToOrganization(ctx, user.ID, org.ID, models.RoleOwner); err != nil {
		return err
	}
	user.OrganizationID = &org.ID
	user.Role = models.RoleOwner
	s.logger.Info("Organization created",
		zap.String("organization_id", org.ID.String()),
		zap.String("user_id", user.ID.String()))
	return nil
}

func (s *userService) Me(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := &Profile{User: user, LocationIDs: []uuid.UUID{}}
	if user.OrganizationID == nil {
		return p, nil
	}

	orgID := *user.OrganizationID
	err = inTenant(ctx, s.getTenantCtx, orgID, func(ctx context.Context) error {
		org, err := s.orgRepo.GetByID(ctx, orgID)
		if err != nil {
			return err
		}
		p.Organization = org
		ids, err := s.access.ResolveLocationIDs(ctx, orgID, user.ID)
		if err != nil {
			return err
		}
		if ids != nil {
			p.LocationIDs = ids
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *userService) ResolvePrincipal(ctx context.Context, subject string) (*auth.Principal, error) {
	user, err := s.userRepo.GetBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	if user.OrganizationID == nil {
		return nil, apperrors.ErrNotFound
	}
	return &auth.Principal{
		UserID:         user.ID,
		OrganizationID: *user.OrganizationID,
		Role:           user.Role,
		Subject:        user.Subject,
		Email:          user.Email,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ UserService = (*userService)(nil)
