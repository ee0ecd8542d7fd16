package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/platforms"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

// autoReplyBatch caps replies per business per run so one backlog cannot starve the rest.
const autoReplyBatch = 20

// maxAutoReplyAttempts is how many failed posts a review gets before auto-reply leaves it
// for a person. Counts live in memory and reset on restart.
const maxAutoReplyAttempts = 3

// replyPlatforms accept owner replies through their API.
var replyPlatforms = map[string]bool{models.PlatformGoogle: true, models.PlatformFacebook: true}

// AutoReplyService answers qualifying reviews with AI drafts.
type AutoReplyService interface {
	// RunOnce replies to unanswered reviews of every business with auto-reply enabled.
	RunOnce(ctx context.Context) error
}

type autoReplyService struct {
	aiRepo         repositories.AISettingsRepository
	businessRepo   repositories.BusinessRepository
	connRepo       repositories.PlatformConnectionRepository
	reviewRepo     repositories.ReviewRepository
	ai             AIService
	poster         ReplyPoster
	notifications  NotificationService
	getTenantCtx   TenantContextFunc
	getUnscopedCtx UnscopedContextFunc
	logger         *zap.Logger
	now            func() time.Time

	mu       sync.Mutex
	failures map[uuid.UUID]int
}

// NewAutoReplyService creates a new auto-reply service.
func NewAutoReplyService(
	aiRepo repositories.AISettingsRepository,
	businessRepo repositories.BusinessRepository,
	connRepo repositories.PlatformConnectionRepository,
	reviewRepo repositories.ReviewRepository,
	ai AIService,
	poster ReplyPoster,
	notifications NotificationService,
	getTenantCtx TenantContextFunc,
	getUnscopedCtx UnscopedContextFunc,
	logger *zap.Logger,
) AutoReplyService {
	return &autoReplyService{
		aiRepo:         aiRepo,
		businessRepo:   businessRepo,
		connRepo:       connRepo,
		reviewRepo:     reviewRepo,
		ai:             ai,
		poster:         poster,
		notifications:  notifications,
		getTenantCtx:   getTenantCtx,
		getUnscopedCtx: getUnscopedCtx,
		logger:         logger.Named("auto-reply"),
		now:            time.Now,
		failures:       make(map[uuid.UUID]int),
	}
}

func (s *autoReplyService) RunOnce(ctx context.Context) error {
	if !s.ai.Available() {
		s.logger.Debug("Skipping auto-reply: no model configured")
		return nil
	}

	var enabled []*models.AISettings
	err := unscoped(ctx, s.getUnscopedCtx, func(ctx context.Context) error {
		var err error
		enabled, err = s.aiRepo.ListAutoReplyEnabled(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to list auto-reply settings: %w", err)
	}

	total := 0
	for _, settings := range enabled {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var n int
		err := inTenant(ctx, s.getTenantCtx, settings.OrganizationID, func(ctx context.Context) error {
			var err error
			n, err = s.replyForBusiness(ctx, settings)
			return err
		})
		if err != nil {
			s.logger.Error("Auto-reply failed for business",
				zap.String("organization_id", settings.OrganizationID.String()),
				zap.String("business_id", settings.BusinessID.String()),
				zap.Error(err))
		}
		total += n
	}

	if total > 0 {
		s.logger.Info("Auto-reply run finished", zap.Int("businesses", len(enabled)), zap.Int("replied", total))
	}
	return nil
}

func (s *autoReplyService) replyForBusiness(ctx context.Context, settings *models.AISettings) (int, error) {
	business, err := s.businessRepo.GetByID(ctx, settings.OrganizationID, settings.BusinessID)
	if err != nil {
		return 0, err
	}
	targets, err := s.postablePlatforms(ctx, settings)
	if err != nil || len(targets) == 0 {
		return 0, err
	}
	pending, err := s.reviewRepo.Unanswered(ctx, settings.BusinessID, targets, settings.MinRating, autoReplyBatch)
	if err != nil {
		return 0, err
	}

	replied := 0
	for _, review := range pending {
		if !settings.AllowsAutoReply(review) || s.givenUp(review.ID) {
			continue
		}
		text, err := s.ai.DraftReply(ctx, business, review, settings)
		if err != nil {
			s.logger.Warn("Failed to draft auto-reply",
				zap.String("review_id", review.ID.String()),
				zap.Error(err))
			continue
		}
		if text == "" {
			continue
		}

		if err := s.poster.PostReply(ctx, review, text); err != nil {
			// A reply that never reached the platform is not stored, so it is retried next run.
			if errors.Is(err, platforms.ErrReplyUnsupported) || errors.Is(err, apperrors.ErrPlatformNotConnected) {
				s.logger.Debug("Skipping auto-reply on platform",
					zap.String("review_id", review.ID.String()),
					zap.String("platform", review.Platform),
					zap.Error(err))
				continue
			}
			attempts := s.recordFailure(review.ID)
			s.logger.Warn("Failed to post auto-reply",
				zap.String("review_id", review.ID.String()),
				zap.String("platform", review.Platform),
				zap.Int("attempts", attempts),
				zap.Error(err))
			continue
		}
		if err := s.reviewRepo.SetResponse(ctx, settings.OrganizationID, review.ID, text, true, s.now()); err != nil {
			return replied, err
		}
		s.clearFailures(review.ID)
		replied++
	}

	if replied > 0 {
		businessID := business.ID
		s.notifications.Notify(ctx, &models.Notification{
			OrganizationID: business.OrganizationID,
			BusinessID:     &businessID,
			Type:           models.NotificationAutoReplied,
			Title:          fmt.Sprintf("AI replied to %d %s", replied, pluralize("review", replied)),
			Message:        fmt.Sprintf("Automatic replies were posted for %s.", business.Name),
			Data:           map[string]any{"count": replied},
		})
	}
	return replied, nil
}

func (s *autoReplyService) givenUp(reviewID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[reviewID] >= maxAutoReplyAttempts
}

func (s *autoReplyService) recordFailure(reviewID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[reviewID]++
	return s.failures[reviewID]
}

func (s *autoReplyService) clearFailures(reviewID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, reviewID)
}

// postablePlatforms narrows the configured platforms to connected ones that accept replies,
// so no drafts are generated for reviews that could not be posted.
func (s *autoReplyService) postablePlatforms(ctx context.Context, settings *models.AISettings) ([]string, error) {
	conns, err := s.connRepo.ListByBusiness(ctx, settings.OrganizationID, settings.BusinessID)
	if err != nil {
		return nil, err
	}
	connected := make(map[string]bool, len(conns))
	for _, c := range conns {
		if c.Status == models.ConnectionActive {
			connected[c.Platform] = true
		}
	}
	var out []string
	for _, p := range settings.Platforms {
		if replyPlatforms[p] && connected[p] {
			out = append(out, p)
		}
	}
	return out, nil
}

var _ AutoReplyService = (*autoReplyService)(nil)
