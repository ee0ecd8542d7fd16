package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

// AISettingsService reads and writes per-business AI reply settings.
type AISettingsService interface {
	// Get returns stored settings or the defaults when none exist.
	Get(ctx context.Context, organizationID, businessID uuid.UUID) (*models.AISettings, error)
	Update(ctx context.Context, s *models.AISettings) (*models.AISettings, error)
}

type aiSettingsService struct {
	repo         repositories.AISettingsRepository
	businessRepo repositories.BusinessRepository
	logger       *zap.Logger
}

// NewAISettingsService creates a new AI settings service.
func NewAISettingsService(repo repositories.AISettingsRepository, businessRepo repositories.BusinessRepository, logger *zap.Logger) AISettingsService {
	return &aiSettingsService{repo: repo, businessRepo: businessRepo, logger: logger.Named("ai-settings")}
}

func (s *aiSettingsService) Get(ctx context.Context, organizationID, businessID uuid.UUID) (*models.AISettings, error) {
	if _, err := s.businessRepo.GetByID(ctx, organizationID, businessID); err != nil {
		return nil, err
	}
	settings, err := s.repo.Get(ctx, organizationID, businessID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return models.DefaultAISettings(organizationID, businessID), nil
	}
	return settings, err
}

func (s *aiSettingsService) Update(ctx context.Context, settings *models.AISettings) (*models.AISettings, error) {
	if _, err := s.businessRepo.GetByID(ctx, settings.OrganizationID, settings.BusinessID); err != nil {
		return nil, err
	}
	if err := validateAISettings(settings); err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func validateAISettings(s *models.AISettings) error {
	if s.MinRating < 1 || s.MinRating > 5 {
		return fmt.Errorf("%w: min_rating must be between 1 and 5", apperrors.ErrInvalidInput)
	}
	if s.Tone == "" {
		s.Tone = models.ToneFriendly
	}
	if !slices.Contains(models.ValidTones, s.Tone) {
		return fmt.Errorf("%w: unknown tone %q", apperrors.ErrInvalidInput, s.Tone)
	}
	for _, p := range s.Platforms {
		if !models.IsValidPlatform(p) {
			return fmt.Errorf("%w: unknown platform %q", apperrors.ErrInvalidInput, p)
		}
	}
	slices.Sort(s.Platforms)
	s.Platforms = slices.Compact(s.Platforms)
	if s.Platforms == nil {
		s.Platforms = []string{}
	}
	s.Signature = strings.TrimSpace(s.Signature)
	s.CustomInstructions = strings.TrimSpace(s.CustomInstructions)
	return nil
}

var _ AISettingsService = (*aiSettingsService)(nil)
