package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/platforms"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

const defaultSnapshotLimit = 30

// RatingLookup reads a competitor's public rating.
type RatingLookup interface {
	Lookup(ctx context.Context, platform, externalID string) (*platforms.CompetitorRating, error)
}

// CompetitorService tracks the public ratings of competing businesses.
type CompetitorService interface {
	Add(ctx context.Context, c *models.Competitor) (*models.Competitor, error)
	List(ctx context.Context, organizationID, businessID uuid.UUID) ([]*models.Competitor, error)
	Remove(ctx context.Context, organizationID, id uuid.UUID) error
	Refresh(ctx context.Context, organizationID, id uuid.UUID) (*models.Competitor, error)
	History(ctx context.Context, organizationID, id uuid.UUID, limit int) ([]*models.CompetitorSnapshot, error)
	// RefreshAll refreshes every tracked competitor across organizations.
	RefreshAll(ctx context.Context) error
}

type competitorService struct {
	repo           repositories.CompetitorRepository
	businessRepo   repositories.BusinessRepository
	lookup         RatingLookup
	notifications  NotificationService
	getTenantCtx   TenantContextFunc
	getUnscopedCtx UnscopedContextFunc
	logger         *zap.Logger
	now            func() time.Time
}

// NewCompetitorService creates a new competitor service.
func NewCompetitorService(
	repo repositories.CompetitorRepository,
	businessRepo repositories.BusinessRepository,
	lookup RatingLookup,
	notifications NotificationService,
	getTenantCtx TenantContextFunc,
	getUnscopedCtx UnscopedContextFunc,
	logger *zap.Logger,
) CompetitorService {
	return &competitorService{
		repo:           repo,
		businessRepo:   businessRepo,
		lookup:         lookup,
		notifications:  notifications,
		getTenantCtx:   getTenantCtx,
		getUnscopedCtx: getUnscopedCtx,
		logger:         logger.Named("competitors"),
		now:            time.Now,
	}
}

func validateCompetitor(c *models.Competitor) error {
	c.Name = strings.TrimSpace(c.Name)
	c.ExternalID = strings.TrimSpace(c.ExternalID)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", apperrors.ErrInvalidInput)
	}

	switch c.Platform {
	case models.PlatformGoogle, models.PlatformYelp:
		if c.ExternalID == "" {
			return fmt.Errorf("%w: external_id is required for %s", apperrors.ErrInvalidInput, c.Platform)
		}
	case models.CompetitorWebsite:
		if c.ExternalID == "" {
			c.ExternalID = strings.TrimSpace(c.WebsiteURL)
		}
		u, err := url.ParseRequestURI(c.ExternalID)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: website competitors need an http(s) URL", apperrors.ErrInvalidInput)
		}
		c.WebsiteURL = c.ExternalID
	default:
		return fmt.Errorf("%w: unsupported competitor platform %q", apperrors.ErrInvalidInput, c.Platform)
	}
	return nil
}

func (s *competitorService) Add(ctx context.Context, c *models.Competitor) (*models.Competitor, error) {
	if err := validateCompetitor(c); err != nil {
		return nil, err
	}
	if _, err := s.businessRepo.GetByID(ctx, c.OrganizationID, c.BusinessID); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	// First reading is best effort; the daily refresh retries.
	if _, err := s.refresh(ctx, c); err != nil {
		s.logger.Warn("Initial competitor lookup failed",
			zap.String("competitor_id", c.ID.String()),
			zap.String("platform", c.Platform),
			zap.Error(err))
	}
	return c, nil
}

func (s *competitorService) List(ctx context.Context, organizationID, businessID uuid.UUID) ([]*models.Competitor, error) {
	return s.repo.ListByBusiness(ctx, organizationID, businessID)
}

func (s *competitorService) Remove(ctx context.Context, organizationID, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, organizationID, id)
}

func (s *competitorService) Refresh(ctx context.Context, organizationID, id uuid.UUID) (*models.Competitor, error) {
	c, err := s.repo.GetByID(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, c)
}

func (s *competitorService) History(ctx context.Context, organizationID, id uuid.UUID, limit int) ([]*models.CompetitorSnapshot, error) {
	if _, err := s.repo.GetByID(ctx, organizationID, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 365 {
		limit = defaultSnapshotLimit
	}
	return s.repo.ListSnapshots(ctx, id, limit)
}

func (s *competitorService) refresh(ctx context.Context, c *models.Competitor) (*models.Competitor, error) {
	found, err := s.lookup.Lookup(ctx, c.Platform, c.ExternalID)
	var rating *float64
	count := c.ReviewCount
	switch {
	case err == nil:
		r := found.Rating
		rating = &r
		count = found.ReviewCount
	case errors.Is(err, platforms.ErrRatingNotFound):
		// recorded as a snapshot without a rating
	default:
		return nil, fmt.Errorf("failed to look up competitor %s: %w", c.ID, err)
	}

	previous := c.Rating
	if err := s.repo.RecordRating(ctx, c, rating, count, s.now()); err != nil {
		return nil, err
	}

	if previous != nil && rating != nil && math.Abs(*previous-*rating) >= 0.05 {
		businessID := c.BusinessID
		direction := "rose"
		if *rating < *previous {
			direction = "dropped"
		}
		s.notifications.Notify(ctx, &models.Notification{
			OrganizationID: c.OrganizationID,
			BusinessID:     &businessID,
			Type:           models.NotificationCompetitorMoved,
			Title:          fmt.Sprintf("%s rating %s to %.1f", c.Name, direction, *rating),
			Message:        fmt.Sprintf("%s moved from %.1f to %.1f stars.", c.Name, *previous, *rating),
			Data:           map[string]any{"competitor_id": c.ID.String(), "previous": *previous, "rating": *rating},
		})
	}
	return c, nil
}

func (s *competitorService) RefreshAll(ctx context.Context) error {
	var all []*models.Competitor
	err := unscoped(ctx, s.getUnscopedCtx, func(ctx context.Context) error {
		var err error
		all, err = s.repo.ListAll(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to list competitors: %w", err)
	}

	failed := 0
	for _, c := range all {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := inTenant(ctx, s.getTenantCtx, c.OrganizationID, func(ctx context.Context) error {
			_, err := s.refresh(ctx, c)
			return err
		})
		if err != nil {
			failed++
			s.logger.Warn("Competitor refresh failed",
				zap.String("organization_id", c.OrganizationID.String()),
				zap.String("competitor_id", c.ID.String()),
				zap.Error(err))
		}
	}
	s.logger.Info("Competitor refresh finished", zap.Int("competitors", len(all)), zap.Int("failed", failed))
	return nil
}

var (
	_ CompetitorService = (*competitorService)(nil)
	_ RatingLookup      = (*platforms.CompetitorLookup)(nil)
)
