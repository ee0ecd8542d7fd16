package services

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

// LocationAccessService resolves and manages which locations a user may see.
type LocationAccessService interface {
	// ResolveLocationIDs returns the sorted, de-duplicated IDs of every active location
	// the user can access. It is recomputed on every call.
	ResolveLocationIDs(ctx context.Context, organizationID, userID uuid.UUID) ([]uuid.UUID, error)
	CanAccessLocation(ctx context.Context, organizationID, userID, locationID uuid.UUID) (bool, error)
	ListGrants(ctx context.Context, organizationID, userID uuid.UUID) ([]*models.LocationAccess, error)
	// AssignAllLocations replaces every grant the user holds with a single "all" grant.
	AssignAllLocations(ctx context.Context, organizationID, userID uuid.UUID) (*models.LocationAccess, error)
	GrantLocation(ctx context.Context, organizationID, userID, locationID uuid.UUID) (*models.LocationAccess, error)
	GrantGroup(ctx context.Context, organizationID, userID, groupID uuid.UUID) (*models.LocationAccess, error)
	Revoke(ctx context.Context, organizationID, userID, accessID uuid.UUID) error
}

type locationAccessService struct {
	userRepo     repositories.UserRepository
	locationRepo repositories.LocationRepository
	groupRepo    repositories.LocationGroupRepository
	accessRepo   repositories.LocationAccessRepository
	logger       *zap.Logger
}

// NewLocationAccessService creates a new location access service.
func NewLocationAccessService(
	userRepo repositories.UserRepository,
	locationRepo repositories.LocationRepository,
	groupRepo repositories.LocationGroupRepository,
	accessRepo repositories.LocationAccessRepository,
	logger *zap.Logger,
) LocationAccessService {
	return &locationAccessService{
		userRepo:     userRepo,
		locationRepo: locationRepo,
		groupRepo:    groupRepo,
		accessRepo:   accessRepo,
		logger:       logger.Named("location-access"),
	}
}

// member loads the user and confirms they belong to the organization.
func (s *locationAccessService) member(ctx context.Context, organizationID, userID uuid.UUID) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.OrganizationID == nil || *user.OrganizationID != organizationID {
		return nil, apperrors.ErrNotFound
	}
	return user, nil
}

func (s *locationAccessService) ResolveLocationIDs(ctx context.Context, organizationID, userID uuid.UUID) ([]uuid.UUID, error) {
	user, err := s.member(ctx, organizationID, userID)
	if err != nil {
		return nil, err
	}

	if user.IsAdmin() {
		return s.allLocations(ctx, organizationID)
	}

	grants, err := s.accessRepo.ListByUser(ctx, organizationID, userID)
	if err != nil {
		return nil, err
	}

	var locationIDs, groupIDs []uuid.UUID
	for _, g := range grants {
		switch g.AccessType {
		case models.AccessAll:
			return s.allLocations(ctx, organizationID)
		case models.AccessLocation:
			if g.LocationID != nil {
				locationIDs = append(locationIDs, *g.LocationID)
			}
		case models.AccessGroup:
			if g.GroupID != nil {
				groupIDs = append(groupIDs, *g.GroupID)
			}
		}
	}

	result := make(map[uuid.UUID]struct{})

	if len(locationIDs) > 0 {
		active, err := s.locationRepo.FilterActive(ctx, organizationID, locationIDs)
		if err != nil {
			return nil, err
		}
		for _, id := range active {
			result[id] = struct{}{}
		}
	}

	if len(groupIDs) > 0 {
		expanded, err := s.expandGroups(ctx, organizationID, groupIDs)
		if err != nil {
			return nil, err
		}
		inGroups, err := s.locationRepo.ListByGroups(ctx, organizationID, expanded)
		if err != nil {
			return nil, err
		}
		for _, id := range inGroups {
			result[id] = struct{}{}
		}
	}

	return sortedIDs(result), nil
}

// expandGroups walks the hierarchy breadth-first from roots and returns every group reached.
// The visited set guarantees termination even if the stored parent links form a cycle.
func (s *locationAccessService) expandGroups(ctx context.Context, organizationID uuid.UUID, roots []uuid.UUID) ([]uuid.UUID, error) {
	visited := make(map[uuid.UUID]struct{})
	var order []uuid.UUID

	worklist := slices.Clone(roots)
	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]

		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		order = append(order, id)

		children, err := s.groupRepo.ListChildren(ctx, organizationID, id)
		if err != nil {
			return nil, fmt.Errorf("failed to expand group %s: %w", id, err)
		}
		for _, c := range children {
			if _, seen := visited[c.ID]; !seen {
				worklist = append(worklist, c.ID)
			}
		}
	}
	return order, nil
}

func (s *locationAccessService) allLocations(ctx context.Context, organizationID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.locationRepo.ListActiveByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return sortedIDs(set), nil
}

func sortedIDs(set map[uuid.UUID]struct{}) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.SortFunc(out, compareUUID)
	return out
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

func (s *locationAccessService) CanAccessLocation(ctx context.Context, organizationID, userID, locationID uuid.UUID) (bool, error) {
	ids, err := s.ResolveLocationIDs(ctx, organizationID, userID)
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearchFunc(ids, locationID, compareUUID)
	return found, nil
}

func (s *locationAccessService) ListGrants(ctx context.Context, organizationID, userID uuid.UUID) ([]*models.LocationAccess, error) {
	if _, err := s.member(ctx, organizationID, userID); err != nil {
		return nil, err
	}
	return s.accessRepo.ListByUser(ctx, organizationID, userID)
}

func (s *locationAccessService) AssignAllLocations(ctx context.Context, organizationID, userID uuid.UUID) (*models.LocationAccess, error) {
	if _, err := s.member(ctx, organizationID, userID); err != nil {
		return nil, err
	}
	access, err := s.accessRepo.ReplaceWithAll(ctx, organizationID, userID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Assigned all locations",
		zap.String("organization_id", organizationID.String()),
		zap.String("user_id", userID.String()))
	return access, nil
}

func (s *locationAccessService) GrantLocation(ctx context.Context, organizationID, userID, locationID uuid.UUID) (*models.LocationAccess, error) {
	if _, err := s.member(ctx, organizationID, userID); err != nil {
		return nil, err
	}
	if _, err := s.locationRepo.GetByID(ctx, organizationID, locationID); err != nil {
		return nil, err
	}
	access := &models.LocationAccess{
		OrganizationID: organizationID,
		UserID:         userID,
		AccessType:     models.AccessLocation,
		LocationID:     &locationID,
	}
	if err := s.accessRepo.Grant(ctx, access); err != nil {
		return nil, err
	}
	return access, nil
}

func (s *locationAccessService) GrantGroup(ctx context.Context, organizationID, userID, groupID uuid.UUID) (*models.LocationAccess, error) {
	if _, err := s.member(ctx, organizationID, userID); err != nil {
		return nil, err
	}
	if _, err := s.groupRepo.GetByID(ctx, organizationID, groupID); err != nil {
		return nil, err
	}
	access := &models.LocationAccess{
		OrganizationID: organizationID,
		UserID:         userID,
		AccessType:     models.AccessGroup,
		GroupID:        &groupID,
	}
	if err := s.accessRepo.Grant(ctx, access); err != nil {
		return nil, err
	}
	return access, nil
}

func (s *locationAccessService) Revoke(ctx context.Context, organizationID, userID, accessID uuid.UUID) error {
	return s.accessRepo.Revoke(ctx, organizationID, userID, accessID)
}

var _ LocationAccessService = (*locationAccessService)(nil)
