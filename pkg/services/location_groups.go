package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

// LocationGroupService manages the location hierarchy.
type LocationGroupService interface {
	Create(ctx context.Context, organizationID uuid.UUID, name string, parentID *uuid.UUID) (*models.LocationGroup, error)
	Rename(ctx context.Context, organizationID, id uuid.UUID, name string) (*models.LocationGroup, error)
	// Move re-parents a group. Moving under itself or a descendant returns ErrGroupCycle.
	Move(ctx context.Context, organizationID, id uuid.UUID, parentID *uuid.UUID) (*models.LocationGroup, error)
	// Delete removes a group; its children move up to its parent and its locations become ungrouped.
	Delete(ctx context.Context, organizationID, id uuid.UUID) error
	Tree(ctx context.Context, organizationID uuid.UUID) ([]*models.LocationGroupNode, error)
}

type locationGroupService struct {
	groupRepo repositories.LocationGroupRepository
	logger    *zap.Logger
}

// NewLocationGroupService creates a new location group service.
func NewLocationGroupService(groupRepo repositories.LocationGroupRepository, logger *zap.Logger) LocationGroupService {
	return &locationGroupService{
		groupRepo: groupRepo,
		logger:    logger.Named("location-groups"),
	}
}

func (s *locationGroupService) Create(ctx context.Context, organizationID uuid.UUID, name string, parentID *uuid.UUID) (*models.LocationGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", apperrors.ErrInvalidInput)
	}

	level := 0
	if parentID != nil {
		parent, err := s.groupRepo.GetByID(ctx, organizationID, *parentID)
		if err != nil {
			return nil, err
		}
		level = parent.Level + 1
	}

	group := &models.LocationGroup{
		OrganizationID: organizationID,
		ParentID:       parentID,
		Name:           name,
		Level:          level,
	}
	if err := s.groupRepo.Create(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *locationGroupService) Rename(ctx context.Context, organizationID, id uuid.UUID, name string) (*models.LocationGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", apperrors.ErrInvalidInput)
	}
	if err := s.groupRepo.Rename(ctx, organizationID, id, name); err != nil {
		return nil, err
	}
	return s.groupRepo.GetByID(ctx, organizationID, id)
}

func (s *locationGroupService) Move(ctx context.Context, organizationID, id uuid.UUID, parentID *uuid.UUID) (*models.LocationGroup, error) {
	if _, err := s.groupRepo.GetByID(ctx, organizationID, id); err != nil {
		return nil, err
	}

	level := 0
	if parentID != nil {
		if *parentID == id {
			return nil, apperrors.ErrGroupCycle
		}
		parent, err := s.groupRepo.GetByID(ctx, organizationID, *parentID)
		if err != nil {
			return nil, err
		}
		descendant, err := s.isAncestor(ctx, organizationID, id, parent)
		if err != nil {
			return nil, err
		}
		if descendant {
			return nil, apperrors.ErrGroupCycle
		}
		level = parent.Level + 1
	}

	if err := s.groupRepo.Move(ctx, organizationID, id, parentID, level); err != nil {
		return nil, err
	}
	s.logger.Info("Moved location group",
		zap.String("organization_id", organizationID.String()),
		zap.String("group_id", id.String()),
		zap.Int("level", level))
	return s.groupRepo.GetByID(ctx, organizationID, id)
}

// isAncestor walks up from node and reports whether ancestorID is on the path to the root.
func (s *locationGroupService) isAncestor(ctx context.Context, organizationID, ancestorID uuid.UUID, node *models.LocationGroup) (bool, error) {
	seen := map[uuid.UUID]bool{node.ID: true}
	for node.ParentID != nil {
		if *node.ParentID == ancestorID {
			return true, nil
		}
		if seen[*node.ParentID] {
			// Existing data already cycles; refuse to make it worse.
			return true, nil
		}
		seen[*node.ParentID] = true

		parent, err := s.groupRepo.GetByID(ctx, organizationID, *node.ParentID)
		if err != nil {
			return false, err
		}
		node = parent
	}
	return false, nil
}

func (s *locationGroupService) Delete(ctx context.Context, organizationID, id uuid.UUID) error {
	return s.groupRepo.Delete(ctx, organizationID, id)
}

func (s *locationGroupService) Tree(ctx context.Context, organizationID uuid.UUID) ([]*models.LocationGroupNode, error) {
	groups, err := s.groupRepo.List(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return BuildGroupTree(groups), nil
}

// BuildGroupTree nests groups under their parents. Groups whose parent is missing
// from the input become roots, and so does the first group (in input order) of any
// parent cycle, so every group appears exactly once. Input order is preserved among siblings.
func BuildGroupTree(groups []*models.LocationGroup) []*models.LocationGroupNode {
	nodes := make(map[uuid.UUID]*models.LocationGroupNode, len(groups))
	for _, g := range groups {
		nodes[g.ID] = &models.LocationGroupNode{LocationGroup: g, Children: []*models.LocationGroupNode{}}
	}

	roots := []*models.LocationGroupNode{}
	for _, g := range groups {
		node := nodes[g.ID]
		if g.ParentID != nil {
			if parent, ok := nodes[*g.ParentID]; ok && *g.ParentID != g.ID {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	seen := make(map[uuid.UUID]bool, len(groups))
	var mark func(n *models.LocationGroupNode)
	mark = func(n *models.LocationGroupNode) {
		if seen[n.ID] {
			return
		}
		seen[n.ID] = true
		for _, c := range n.Children {
			mark(c)
		}
	}
	for _, r := range roots {
		mark(r)
	}

	// Whatever is unreachable now sits on a cycle or hangs below one.
	for _, g := range groups {
		if seen[g.ID] {
			continue
		}
		node := nodes[g.ID]
		parent := nodes[*g.ParentID]
		parent.Children = slices.DeleteFunc(parent.Children, func(c *models.LocationGroupNode) bool { return c == node })
		roots = append(roots, node)
		mark(node)
	}
	return roots
}

var _ LocationGroupService = (*locationGroupService)(nil)
