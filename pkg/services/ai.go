package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/jsonutil"
	"github.com/reviewpilot/reviewpilot-engine/pkg/llm"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/prompts"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

const (
	insightReviewSample = 50
	summaryReviewSample = 100
	maxInsights         = 5
	replyMaxWords       = 120
)

// AIService generates text from reviews with the configured model.
// Every method issues exactly one completion request and caches nothing.
type AIService interface {
	// Available reports whether a model is configured.
	Available() bool
	DraftReply(ctx context.Context, business *models.Business, review *models.Review, settings *models.AISettings) (string, error)
	// GenerateInsights is best effort: an unparseable model reply yields an empty list, not an error.
	GenerateInsights(ctx context.Context, organizationID, businessID uuid.UUID) ([]models.Insight, error)
	Summarize(ctx context.Context, organizationID, businessID uuid.UUID) (string, error)
	CompareCompetitors(ctx context.Context, organizationID, businessID uuid.UUID) (string, error)
}

type aiService struct {
	client         llm.LLMClient
	library        *prompts.Library
	businessRepo   repositories.BusinessRepository
	reviewRepo     repositories.ReviewRepository
	competitorRepo repositories.CompetitorRepository
	temperature    float64
	logger         *zap.Logger
}

// NewAIService creates an AI service. client may be nil, in which case every
// generation returns llm.ErrNotConfigured.
func NewAIService(
	client llm.LLMClient,
	library *prompts.Library,
	businessRepo repositories.BusinessRepository,
	reviewRepo repositories.ReviewRepository,
	competitorRepo repositories.CompetitorRepository,
	temperature float64,
	logger *zap.Logger,
) AIService {
	return &aiService{
		client:         client,
		library:        library,
		businessRepo:   businessRepo,
		reviewRepo:     reviewRepo,
		competitorRepo: competitorRepo,
		temperature:    temperature,
		logger:         logger.Named("ai"),
	}
}

func (s *aiService) Available() bool {
	return s.client != nil
}

func (s *aiService) complete(ctx context.Context, promptName string, data any) (string, error) {
	if s.client == nil {
		return "", llm.ErrNotConfigured
	}

	system, user, err := s.library.Render(promptName, data)
	if err != nil {
		return "", err
	}

	result, err := s.client.GenerateResponse(ctx, user, system, s.temperature)
	if err != nil {
		return "", fmt.Errorf("%s generation failed: %w", promptName, err)
	}

	s.logger.Debug("AI completion",
		zap.String("prompt", promptName),
		zap.String("model", s.client.GetModel()),
		zap.Int("total_tokens", result.TotalTokens))
	return strings.TrimSpace(result.Content), nil
}

func (s *aiService) DraftReply(ctx context.Context, business *models.Business, review *models.Review, settings *models.AISettings) (string, error) {
	if settings == nil {
		settings = models.DefaultAISettings(business.OrganizationID, business.ID)
	}
	tone := settings.Tone
	if tone == "" {
		tone = models.ToneFriendly
	}

	reply, err := s.complete(ctx, prompts.DraftReply, prompts.ReplyData{
		BusinessName:       business.Name,
		Platform:           review.Platform,
		ReviewerName:       review.ReviewerName,
		Rating:             review.Rating,
		Text:               review.Text,
		PostedAt:           review.PostedAt,
		Tone:               tone,
		Signature:          settings.Signature,
		CustomInstructions: settings.CustomInstructions,
		MaxWords:           replyMaxWords,
	})
	if err != nil {
		return "", err
	}
	return strings.Trim(reply, "\"“”"), nil
}

// digest loads the business and its recent reviews in prompt form.
func (s *aiService) digest(ctx context.Context, organizationID, businessID uuid.UUID, limit int) (prompts.DigestData, error) {
	business, err := s.businessRepo.GetByID(ctx, organizationID, businessID)
	if err != nil {
		return prompts.DigestData{}, err
	}
	reviews, err := s.reviewRepo.Recent(ctx, businessID, limit)
	if err != nil {
		return prompts.DigestData{}, err
	}

	data := prompts.DigestData{BusinessName: business.Name, Count: len(reviews)}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
		data.Reviews = append(data.Reviews, prompts.ReviewLine{
			Rating:   r.Rating,
			Platform: r.Platform,
			Text:     r.Text,
			PostedAt: r.PostedAt,
		})
	}
	if len(reviews) > 0 {
		data.AverageRating = float64(sum) / float64(len(reviews))
	}
	return data, nil
}

func (s *aiService) GenerateInsights(ctx context.Context, organizationID, businessID uuid.UUID) ([]models.Insight, error) {
	data, err := s.digest(ctx, organizationID, businessID, insightReviewSample)
	if err != nil {
		return nil, err
	}
	if data.Count == 0 {
		return []models.Insight{}, nil
	}

	reply, err := s.complete(ctx, prompts.Insights, data)
	if err != nil {
		return nil, err
	}

	insights, err := llm.ParseJSONResponse[[]modelInsight](reply)
	if err != nil {
		s.logger.Warn("Discarding unparseable insights reply",
			zap.String("business_id", businessID.String()),
			zap.Error(err))
		return []models.Insight{}, nil
	}
	return normalizeInsights(insights), nil
}

// modelInsight is an insight as the model writes it; fields may arrive as numbers.
type modelInsight struct {
	Title    jsonutil.FlexString `json:"title"`
	Detail   jsonutil.FlexString `json:"detail"`
	Category jsonutil.FlexString `json:"category"`
	Priority jsonutil.FlexString `json:"priority"`
}

func normalizeInsights(in []modelInsight) []models.Insight {
	out := make([]models.Insight, 0, len(in))
	for _, raw := range in {
		i := models.Insight{
			Title:    strings.TrimSpace(raw.Title.String()),
			Detail:   strings.TrimSpace(raw.Detail.String()),
			Category: strings.TrimSpace(raw.Category.String()),
		}
		if i.Title == "" {
			continue
		}
		switch p := strings.ToLower(strings.TrimSpace(raw.Priority.String())); p {
		case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
			i.Priority = p
		case "1":
			i.Priority = models.PriorityHigh
		case "3":
			i.Priority = models.PriorityLow
		default:
			i.Priority = models.PriorityMedium
		}
		if i.Category == "" {
			i.Category = "other"
		}
		out = append(out, i)
		if len(out) == maxInsights {
			break
		}
	}
	return out
}

func (s *aiService) Summarize(ctx context.Context, organizationID, businessID uuid.UUID) (string, error) {
	data, err := s.digest(ctx, organizationID, businessID, summaryReviewSample)
	if err != nil {
		return "", err
	}
	if data.Count == 0 {
		return "", nil
	}
	return s.complete(ctx, prompts.Summary, data)
}

func (s *aiService) CompareCompetitors(ctx context.Context, organizationID, businessID uuid.UUID) (string, error) {
	digest, err := s.digest(ctx, organizationID, businessID, summaryReviewSample)
	if err != nil {
		return "", err
	}
	competitors, err := s.competitorRepo.ListByBusiness(ctx, organizationID, businessID)
	if err != nil {
		return "", err
	}

	data := prompts.ComparisonData{
		BusinessName:  digest.BusinessName,
		Count:         digest.Count,
		AverageRating: digest.AverageRating,
	}
	for _, c := range competitors {
		if c.Rating == nil {
			continue
		}
		line := prompts.CompetitorLine{
			Name:        c.Name,
			Platform:    c.Platform,
			Rating:      *c.Rating,
			ReviewCount: c.ReviewCount,
		}
		if c.LastCheckedAt != nil {
			line.CheckedAt = *c.LastCheckedAt
		}
		data.Competitors = append(data.Competitors, line)
	}
	if len(data.Competitors) == 0 {
		return "", nil
	}
	return s.complete(ctx, prompts.CompetitorComparison, data)
}

var _ AIService = (*aiService)(nil)
