package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/platforms"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

// ReviewService reads reviews through the caller's location access and answers them.
type ReviewService interface {
	List(ctx context.Context, organizationID, userID uuid.UUID, filter *models.ReviewFilter) ([]*models.Review, int, error)
	Get(ctx context.Context, organizationID, userID, id uuid.UUID) (*models.Review, error)
	// Respond posts text to the platform when the business has it connected, then stores it.
	Respond(ctx context.Context, organizationID, userID, id uuid.UUID, text string) (*models.Review, error)
	// Draft asks the AI for a reply without posting or storing it.
	Draft(ctx context.Context, organizationID, userID, id uuid.UUID) (string, error)
	UpdateSentiment(ctx context.Context, organizationID, userID, id uuid.UUID, sentiment string) error
	Analytics(ctx context.Context, organizationID, userID, businessID uuid.UUID) (*models.ReviewStats, error)
}

// ReplyPoster publishes a reply on the review's platform.
type ReplyPoster interface {
	PostReply(ctx context.Context, review *models.Review, text string) error
}

type reviewService struct {
	reviewRepo   repositories.ReviewRepository
	businessRepo repositories.BusinessRepository
	userRepo     repositories.UserRepository
	aiRepo       repositories.AISettingsRepository
	access       LocationAccessService
	poster       ReplyPoster
	ai           AIService
	logger       *zap.Logger
	now          func() time.Time
}

// NewReviewService creates a new review service.
func NewReviewService(
	reviewRepo repositories.ReviewRepository,
	businessRepo repositories.BusinessRepository,
	userRepo repositories.UserRepository,
	aiRepo repositories.AISettingsRepository,
	access LocationAccessService,
	poster ReplyPoster,
	ai AIService,
	logger *zap.Logger,
) ReviewService {
	return &reviewService{
		reviewRepo:   reviewRepo,
		businessRepo: businessRepo,
		userRepo:     userRepo,
		aiRepo:       aiRepo,
		access:       access,
		poster:       poster,
		ai:           ai,
		logger:       logger.Named("reviews"),
		now:          time.Now,
	}
}

// visibleLocations returns nil for callers who see everything, otherwise their resolved IDs.
// Admins and holders of an "all" grant also see reviews that carry no location.
func (s *reviewService) visibleLocations(ctx context.Context, organizationID, userID uuid.UUID) ([]uuid.UUID, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin() {
		return nil, nil
	}
	grants, err := s.access.ListGrants(ctx, organizationID, userID)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		if g.AccessType == models.AccessAll {
			return nil, nil
		}
	}
	ids, err := s.access.ResolveLocationIDs(ctx, organizationID, userID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}

func (s *reviewService) List(ctx context.Context, organizationID, userID uuid.UUID, filter *models.ReviewFilter) ([]*models.Review, int, error) {
	if filter == nil {
		filter = &models.ReviewFilter{}
	}
	if filter.Platform != "" && !models.IsValidPlatform(filter.Platform) {
		return nil, 0, fmt.Errorf("%w: unknown platform %q", apperrors.ErrInvalidInput, filter.Platform)
	}
	if filter.MinRating > 0 && filter.MaxRating > 0 && filter.MinRating > filter.MaxRating {
		return nil, 0, fmt.Errorf("%w: min_rating exceeds max_rating", apperrors.ErrInvalidInput)
	}

	ids, err := s.visibleLocations(ctx, organizationID, userID)
	if err != nil {
		return nil, 0, err
	}
	filter.LocationIDs = intersectLocations(filter.LocationIDs, ids)
	return s.reviewRepo.List(ctx, organizationID, filter)
}

// intersectLocations narrows a requested location filter to what the caller can see.
// A nil allowed means unrestricted.
func intersectLocations(requested, allowed []uuid.UUID) []uuid.UUID {
	if allowed == nil {
		return requested
	}
	if requested == nil {
		return allowed
	}
	set := make(map[uuid.UUID]bool, len(allowed))
	for _, id := range allowed {
		set[id] = true
	}
	out := []uuid.UUID{}
	for _, id := range requested {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}

func (s *reviewService) Get(ctx context.Context, organizationID, userID, id uuid.UUID) (*models.Review, error) {
	review, err := s.reviewRepo.GetByID(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	ids, err := s.visibleLocations(ctx, organizationID, userID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		return review, nil
	}
	// Reviews without a location are business-wide and visible to admins only.
	if review.LocationID == nil || !containsID(ids, *review.LocationID) {
		return nil, apperrors.ErrNotFound
	}
	return review, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func (s *reviewService) Respond(ctx context.Context, organizationID, userID, id uuid.UUID, text string) (*models.Review, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: response text is required", apperrors.ErrInvalidInput)
	}

	review, err := s.Get(ctx, organizationID, userID, id)
	if err != nil {
		return nil, err
	}

	if err := s.poster.PostReply(ctx, review, text); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrPlatformNotConnected), errors.Is(err, platforms.ErrReplyUnsupported):
			// Stored locally only; the owner replies on the platform directly.
			s.logger.Debug("Reply stored without posting",
				zap.String("review_id", id.String()),
				zap.String("platform", review.Platform),
				zap.Error(err))
		default:
			return nil, err
		}
	}

	at := s.now()
	if err := s.reviewRepo.SetResponse(ctx, organizationID, id, text, false, at); err != nil {
		return nil, err
	}
	review.ResponseText = &text
	review.ResponseDate = &at
	review.RespondedByAI = false
	return review, nil
}

func (s *reviewService) Draft(ctx context.Context, organizationID, userID, id uuid.UUID) (string, error) {
	review, err := s.Get(ctx, organizationID, userID, id)
	if err != nil {
		return "", err
	}
	business, err := s.businessRepo.GetByID(ctx, organizationID, review.BusinessID)
	if err != nil {
		return "", err
	}
	settings, err := s.aiRepo.Get(ctx, organizationID, review.BusinessID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return "", err
	}
	return s.ai.DraftReply(ctx, business, review, settings)
}

func (s *reviewService) UpdateSentiment(ctx context.Context, organizationID, userID, id uuid.UUID, sentiment string) error {
	switch sentiment {
	case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative:
	default:
		return fmt.Errorf("%w: unknown sentiment %q", apperrors.ErrInvalidInput, sentiment)
	}
	if _, err := s.Get(ctx, organizationID, userID, id); err != nil {
		return err
	}
	return s.reviewRepo.UpdateSentiment(ctx, organizationID, id, sentiment)
}

func (s *reviewService) Analytics(ctx context.Context, organizationID, userID, businessID uuid.UUID) (*models.ReviewStats, error) {
	if _, err := s.businessRepo.GetByID(ctx, organizationID, businessID); err != nil {
		return nil, err
	}
	ids, err := s.visibleLocations(ctx, organizationID, userID)
	if err != nil {
		return nil, err
	}
	return s.reviewRepo.Stats(ctx, organizationID, businessID, ids)
}

var _ ReviewService = (*reviewService)(nil)
