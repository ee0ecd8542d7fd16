package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

// BusinessService manages the businesses of an organization.
type BusinessService interface {
	Create(ctx context.Context, b *models.Business) (*models.Business, error)
	Get(ctx context.Context, organizationID, id uuid.UUID) (*models.Business, error)
	List(ctx context.Context, organizationID uuid.UUID) ([]*models.Business, error)
	Update(ctx context.Context, b *models.Business) (*models.Business, error)
	Delete(ctx context.Context, organizationID, id uuid.UUID) error
}

type businessService struct {
	businessRepo repositories.BusinessRepository
	aiRepo       repositories.AISettingsRepository
	logger       *zap.Logger
}

// NewBusinessService creates a new business service.
func NewBusinessService(businessRepo repositories.BusinessRepository, aiRepo repositories.AISettingsRepository, logger *zap.Logger) BusinessService {
	return &businessService{
		businessRepo: businessRepo,
		aiRepo:       aiRepo,
		logger:       logger.Named("businesses"),
	}
}

// Create stores the business together with default AI settings.
func (s *businessService) Create(ctx context.Context, b *models.Business) (*models.Business, error) {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return nil, fmt.Errorf("%w: name is required", apperrors.ErrInvalidInput)
	}
	if err := s.businessRepo.Create(ctx, b); err != nil {
		return nil, err
	}
	if err := s.aiRepo.Upsert(ctx, models.DefaultAISettings(b.OrganizationID, b.ID)); err != nil {
		s.logger.Warn("Failed to store default AI settings",
			zap.String("business_id", b.ID.String()),
			zap.Error(err))
	}
	return b, nil
}

func (s *businessService) Get(ctx context.Context, organizationID, id uuid.UUID) (*models.Business, error) {
	return s.businessRepo.GetByID(ctx, organizationID, id)
}

func (s *businessService) List(ctx context.Context, organizationID uuid.UUID) ([]*models.Business, error) {
	return s.businessRepo.List(ctx, organizationID)
}

func (s *businessService) Update(ctx context.Context, b *models.Business) (*models.Business, error) {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return nil, fmt.Errorf("%w: name is required", apperrors.ErrInvalidInput)
	}
	if err := s.businessRepo.Update(ctx, b); err != nil {
		return nil, err
	}
	return s.businessRepo.GetByID(ctx, b.OrganizationID, b.ID)
}

func (s *businessService) Delete(ctx context.Context, organizationID, id uuid.UUID) error {
	return s.businessRepo.SoftDelete(ctx, organizationID, id)
}

var _ BusinessService = (*businessService)(nil)

// LocationService manages locations. Reads go through the caller's resolved access.
type LocationService interface {
	Create(ctx context.Context, l *models.Location) (*models.Location, error)
	// Get returns ErrNotFound for locations the user cannot access.
	Get(ctx context.Context, organizationID, userID, id uuid.UUID) (*models.Location, error)
	List(ctx context.Context, organizationID, userID uuid.UUID) ([]*models.Location, error)
	Update(ctx context.Context, l *models.Location) (*models.Location, error)
	Delete(ctx context.Context, organizationID, id uuid.UUID) error
}

type locationService struct {
	locationRepo repositories.LocationRepository
	groupRepo    repositories.LocationGroupRepository
	businessRepo repositories.BusinessRepository
	userRepo     repositories.UserRepository
	access       LocationAccessService
	logger       *zap.Logger
}

// NewLocationService creates a new location service.
func NewLocationService(
	locationRepo repositories.LocationRepository,
	groupRepo repositories.LocationGroupRepository,
	businessRepo repositories.BusinessRepository,
	userRepo repositories.UserRepository,
	access LocationAccessService,
	logger *zap.Logger,
) LocationService {
	return &locationService{
		locationRepo: locationRepo,
		groupRepo:    groupRepo,
		businessRepo: businessRepo,
		userRepo:     userRepo,
		access:       access,
		logger:       logger.Named("locations"),
	}
}

// validateRefs checks that the business, group and manager all belong to the organization.
func (s *locationService) validateRefs(ctx context.Context, l *models.Location) error {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return fmt.Errorf("%w: name is required", apperrors.ErrInvalidInput)
	}
	if l.BusinessID != nil {
		if _, err := s.businessRepo.GetByID(ctx, l.OrganizationID, *l.BusinessID); err != nil {
			return fmt.Errorf("business: %w", err)
		}
	}
	if l.GroupID != nil {
		if _, err := s.groupRepo.GetByID(ctx, l.OrganizationID, *l.GroupID); err != nil {
			return fmt.Errorf("group: %w", err)
		}
	}
	if l.ManagerID != nil {
		manager, err := s.userRepo.GetByID(ctx, *l.ManagerID)
		if err != nil {
			return fmt.Errorf("manager: %w", err)
		}
		if manager.OrganizationID == nil || *manager.OrganizationID != l.OrganizationID {
			return fmt.Errorf("manager: %w", apperrors.ErrNotFound)
		}
	}
	return nil
}

func (s *locationService) Create(ctx context.Context, l *models.Location) (*models.Location, error) {
	if err := s.validateRefs(ctx, l); err != nil {
		return nil, err
	}
	l.IsActive = true
	if err := s.locationRepo.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *locationService) Get(ctx context.Context, organizationID, userID, id uuid.UUID) (*models.Location, error) {
	ok, err := s.access.CanAccessLocation(ctx, organizationID, userID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Inactive locations are hidden from the resolver but still visible to admins.
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !user.IsAdmin() {
			return nil, apperrors.ErrNotFound
		}
	}
	return s.locationRepo.GetByID(ctx, organizationID, id)
}

// List returns accessible locations. Admins also see inactive ones.
func (s *locationService) List(ctx context.Context, organizationID, userID uuid.UUID) ([]*models.Location, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin() {
		return s.locationRepo.List(ctx, organizationID, nil)
	}

	ids, err := s.access.ResolveLocationIDs(ctx, organizationID, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*models.Location{}, nil
	}
	return s.locationRepo.List(ctx, organizationID, ids)
}

func (s *locationService) Update(ctx context.Context, l *models.Location) (*models.Location, error) {
	if err := s.validateRefs(ctx, l); err != nil {
		return nil, err
	}
	if err := s.locationRepo.Update(ctx, l); err != nil {
		return nil, err
	}
	return s.locationRepo.GetByID(ctx, l.OrganizationID, l.ID)
}

func (s *locationService) Delete(ctx context.Context, organizationID, id uuid.UUID) error {
	return s.locationRepo.SoftDelete(ctx, organizationID, id)
}

var _ LocationService = (*locationService)(nil)
