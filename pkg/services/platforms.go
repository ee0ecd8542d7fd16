package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/logging"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/platforms"
	"github.com/reviewpilot/reviewpilot-engine/pkg/repositories"
)

// TokenRefreshWindow is how close to expiry an access token gets refreshed before use.
const TokenRefreshWindow = 5 * time.Minute

// PlatformService connects businesses to review platforms and pulls their reviews.
type PlatformService interface {
	// BeginConnect issues a single-use state and returns the platform's authorization URL.
	BeginConnect(ctx context.Context, st *OAuthState) (string, error)
	// CompleteConnect consumes state, exchanges code and stores the connection.
	// It runs without a tenant context since the platform redirect carries no bearer token.
	CompleteConnect(ctx context.Context, platform, state, code string) (*models.PlatformConnection, *OAuthState, error)
	ListConnections(ctx context.Context, organizationID, businessID uuid.UUID) ([]*models.PlatformConnection, error)
	Disconnect(ctx context.Context, organizationID, businessID uuid.UUID, platform string) error
	// SyncReviews pulls new reviews for one connection and returns how many were stored.
	SyncReviews(ctx context.Context, organizationID, businessID uuid.UUID, platform string) (int, error)
	// SyncAll syncs every active connection on the given platforms, one after another.
	SyncAll(ctx context.Context, platforms []string) error
	// SyncExternalAccount syncs the connections bound to a platform account, for webhooks.
	SyncExternalAccount(ctx context.Context, platform, externalAccountID string) (int, error)
	EnsureFreshToken(ctx context.Context, conn *models.PlatformConnection) error
	PostReply(ctx context.Context, review *models.Review, text string) error
}

type platformService struct {
	registry       *platforms.Registry
	states         OAuthStateStore
	connRepo       repositories.PlatformConnectionRepository
	businessRepo   repositories.BusinessRepository
	reviewRepo     repositories.ReviewRepository
	locationRepo   repositories.LocationRepository
	notifications  NotificationService
	getTenantCtx   TenantContextFunc
	getUnscopedCtx UnscopedContextFunc
	logger         *zap.Logger
	now            func() time.Time
}

// NewPlatformService creates a new platform service.
func NewPlatformService(
	registry *platforms.Registry,
	states OAuthStateStore,
	connRepo repositories.PlatformConnectionRepository,
	businessRepo repositories.BusinessRepository,
	reviewRepo repositories.ReviewRepository,
	locationRepo repositories.LocationRepository,
	notifications NotificationService,
	getTenantCtx TenantContextFunc,
	getUnscopedCtx UnscopedContextFunc,
	logger *zap.Logger,
) PlatformService {
	return &platformService{
		registry:       registry,
		states:         states,
		connRepo:       connRepo,
		businessRepo:   businessRepo,
		reviewRepo:     reviewRepo,
		locationRepo:   locationRepo,
		notifications:  notifications,
		getTenantCtx:   getTenantCtx,
		getUnscopedCtx: getUnscopedCtx,
		logger:         logger.Named("platforms"),
		now:            time.Now,
	}
}

func (s *platformService) BeginConnect(ctx context.Context, st *OAuthState) (string, error) {
	adapter, err := s.registry.Get(st.Platform)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if _, err := s.businessRepo.GetByID(ctx, st.OrganizationID, st.BusinessID); err != nil {
		return "", err
	}
	// Yelp has no listing discovery, so the business ID must be chosen up front.
	if st.Platform == models.PlatformYelp && strings.TrimSpace(st.AccountID) == "" {
		return "", fmt.Errorf("%w: account_id is required for yelp", apperrors.ErrInvalidInput)
	}

	token, err := s.states.Issue(ctx, st)
	if err != nil {
		return "", fmt.Errorf("failed to issue oauth state: %w", err)
	}
	return adapter.AuthorizeURL(token), nil
}

func (s *platformService) CompleteConnect(ctx context.Context, platform, state, code string) (*models.PlatformConnection, *OAuthState, error) {
	st, err := s.states.Consume(ctx, state, platform)
	if err != nil {
		return nil, nil, err
	}
	if code == "" {
		return nil, st, fmt.Errorf("%w: missing authorization code", apperrors.ErrInvalidInput)
	}
	adapter, err := s.registry.Get(platform)
	if err != nil {
		return nil, st, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	tokens, err := adapter.Exchange(ctx, code)
	if err != nil {
		return nil, st, fmt.Errorf("failed to exchange %s authorization code: %w", platform, err)
	}

	conn := &models.PlatformConnection{
		OrganizationID: st.OrganizationID,
		BusinessID:     st.BusinessID,
		Platform:       platform,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: tokens.ExpiresAt,
		Scopes:         tokens.Scopes,
		Status:         models.ConnectionActive,
		ConnectedBy:    &st.UserID,
	}

	account, err := adapter.DiscoverAccount(ctx, tokens.AccessToken)
	switch {
	case err == nil:
		conn.ExternalAccountID = account.ID
		conn.ExternalAccountName = account.Name
		if account.AccessToken != "" {
			conn.AccessToken = account.AccessToken
			conn.TokenExpiresAt = nil
		}
	case errors.Is(err, platforms.ErrNoAccount) && st.AccountID != "":
		conn.ExternalAccountID = st.AccountID
	default:
		return nil, st, fmt.Errorf("failed to find %s business account: %w", platform, err)
	}

	err = inTenant(ctx, s.getTenantCtx, st.OrganizationID, func(ctx context.Context) error {
		return s.connRepo.Upsert(ctx, conn)
	})
	if err != nil {
		return nil, st, err
	}

	s.logger.Info("Platform connected",
		zap.String("organization_id", st.OrganizationID.String()),
		zap.String("business_id", st.BusinessID.String()),
		zap.String("platform", platform),
		zap.String("external_account_id", conn.ExternalAccountID))
	return conn, st, nil
}

func (s *platformService) ListConnections(ctx context.Context, organizationID, businessID uuid.UUID) ([]*models.PlatformConnection, error) {
	if _, err := s.businessRepo.GetByID(ctx, organizationID, businessID); err != nil {
		return nil, err
	}
	return s.connRepo.ListByBusiness(ctx, organizationID, businessID)
}

func (s *platformService) Disconnect(ctx context.Context, organizationID, businessID uuid.UUID, platform string) error {
	if err := s.connRepo.Delete(ctx, organizationID, businessID, platform); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrPlatformNotConnected
		}
		return err
	}
	s.logger.Info("Platform disconnected",
		zap.String("organization_id", organizationID.String()),
		zap.String("business_id", businessID.String()),
		zap.String("platform", platform))
	return nil
}

func (s *platformService) EnsureFreshToken(ctx context.Context, conn *models.PlatformConnection) error {
	if !conn.NeedsRefresh(s.now(), TokenRefreshWindow) {
		return nil
	}
	if conn.RefreshToken == "" {
		return fmt.Errorf("%w: %s token expired and cannot be refreshed", apperrors.ErrPlatformNotConnected, conn.Platform)
	}
	adapter, err := s.registry.Get(conn.Platform)
	if err != nil {
		return err
	}

	tokens, err := adapter.Refresh(ctx, conn.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to refresh %s token: %w", conn.Platform, err)
	}
	conn.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		conn.RefreshToken = tokens.RefreshToken
	}
	conn.TokenExpiresAt = tokens.ExpiresAt

	if err := s.connRepo.UpdateTokens(ctx, conn); err != nil {
		return err
	}
	s.logger.Debug("Refreshed platform token",
		zap.String("connection_id", conn.ID.String()),
		zap.String("platform", conn.Platform))
	return nil
}

func (s *platformService) PostReply(ctx context.Context, review *models.Review, text string) error {
	conn, err := s.connRepo.Get(ctx, review.OrganizationID, review.BusinessID, review.Platform)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrPlatformNotConnected
		}
		return err
	}
	if conn.Status == models.ConnectionDisconnected {
		return apperrors.ErrPlatformNotConnected
	}
	adapter, err := s.registry.Get(conn.Platform)
	if err != nil {
		return err
	}
	if err := s.EnsureFreshToken(ctx, conn); err != nil {
		return err
	}
	return adapter.PostReply(ctx, conn.AccessToken, conn.ExternalAccountID, review.ExternalID, text)
}

func (s *platformService) SyncReviews(ctx context.Context, organizationID, businessID uuid.UUID, platform string) (int, error) {
	conn, err := s.connRepo.Get(ctx, organizationID, businessID, platform)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return 0, apperrors.ErrPlatformNotConnected
		}
		return 0, err
	}
	return s.syncConnection(ctx, conn)
}

func (s *platformService) SyncAll(ctx context.Context, platformNames []string) error {
	var conns []*models.PlatformConnection
	err := unscoped(ctx, s.getUnscopedCtx, func(ctx context.Context) error {
		var err error
		conns, err = s.connRepo.ListActiveByPlatforms(ctx, platformNames)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}

	total, failed := 0, 0
	for _, conn := range conns {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var n int
		err := inTenant(ctx, s.getTenantCtx, conn.OrganizationID, func(ctx context.Context) error {
			var err error
			n, err = s.syncConnection(ctx, conn)
			return err
		})
		if err != nil {
			failed++
			continue
		}
		total += n
	}

	s.logger.Info("Review sync finished",
		zap.Int("connections", len(conns)),
		zap.Int("failed", failed),
		zap.Int("inserted", total))
	return nil
}

func (s *platformService) SyncExternalAccount(ctx context.Context, platform, externalAccountID string) (int, error) {
	var conns []*models.PlatformConnection
	err := unscoped(ctx, s.getUnscopedCtx, func(ctx context.Context) error {
		var err error
		conns, err = s.connRepo.FindByExternalAccount(ctx, platform, externalAccountID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(conns) == 0 {
		return 0, apperrors.ErrPlatformNotConnected
	}

	total := 0
	for _, conn := range conns {
		err := inTenant(ctx, s.getTenantCtx, conn.OrganizationID, func(ctx context.Context) error {
			n, err := s.syncConnection(ctx, conn)
			total += n
			return err
		})
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// syncConnection expects ctx to be scoped to the connection's organization.
func (s *platformService) syncConnection(ctx context.Context, conn *models.PlatformConnection) (int, error) {
	n, err := s.fetchAndStore(ctx, conn)
	if err != nil {
		s.logger.Error("Review sync failed",
			zap.String("organization_id", conn.OrganizationID.String()),
			zap.String("connection_id", conn.ID.String()),
			zap.String("platform", conn.Platform),
			zap.String("error", logging.SanitizeError(err)))
		if markErr := s.connRepo.MarkError(ctx, conn.ID, logging.TruncateString(err.Error(), 500)); markErr != nil {
			s.logger.Error("Failed to record sync error", zap.Error(markErr))
		}
		businessID := conn.BusinessID
		s.notifications.Notify(ctx, &models.Notification{
			OrganizationID: conn.OrganizationID,
			BusinessID:     &businessID,
			Type:           models.NotificationSyncFailed,
			Title:          fmt.Sprintf("%s sync failed", platformTitle(conn.Platform)),
			Message:        "Reviews could not be fetched. Reconnect the platform if this keeps happening.",
			Data:           map[string]any{"platform": conn.Platform},
		})
		return 0, err
	}
	return n, nil
}

func (s *platformService) fetchAndStore(ctx context.Context, conn *models.PlatformConnection) (int, error) {
	adapter, err := s.registry.Get(conn.Platform)
	if err != nil {
		return 0, err
	}
	if err := s.EnsureFreshToken(ctx, conn); err != nil {
		return 0, err
	}

	var since time.Time
	if conn.LastSyncedAt != nil {
		since = *conn.LastSyncedAt
	}
	startedAt := s.now()

	fetched, err := adapter.FetchReviews(ctx, conn.AccessToken, conn.ExternalAccountID, since)
	if err != nil {
		return 0, err
	}

	externalIDs := make([]string, 0, len(fetched))
	for _, r := range fetched {
		externalIDs = append(externalIDs, r.ExternalID)
	}
	existing := map[string]bool{}
	if len(externalIDs) > 0 {
		if existing, err = s.reviewRepo.ExistingExternalIDs(ctx, conn.BusinessID, conn.Platform, externalIDs); err != nil {
			return 0, err
		}
	}

	locationID := s.locationFor(ctx, conn)
	fresh := make([]*models.Review, 0, len(fetched))
	for _, r := range fetched {
		if existing[r.ExternalID] {
			continue
		}
		existing[r.ExternalID] = true
		fresh = append(fresh, &models.Review{
			OrganizationID:    conn.OrganizationID,
			BusinessID:        conn.BusinessID,
			LocationID:        locationID,
			Platform:          conn.Platform,
			ExternalID:        r.ExternalID,
			ReviewerName:      r.ReviewerName,
			ReviewerAvatarURL: r.ReviewerAvatarURL,
			Rating:            r.Rating,
			Text:              r.Text,
			ReviewURL:         r.URL,
			PostedAt:          r.PostedAt,
			Sentiment:         models.SentimentFromRating(r.Rating),
			ResponseText:      r.ResponseText,
			ResponseDate:      r.ResponseDate,
		})
	}

	inserted := 0
	if len(fresh) > 0 {
		if inserted, err = s.reviewRepo.InsertBatch(ctx, fresh); err != nil {
			return 0, err
		}
	}
	if err := s.connRepo.MarkSynced(ctx, conn.ID, startedAt); err != nil {
		return inserted, err
	}
	conn.LastSyncedAt = &startedAt

	s.logger.Debug("Synced reviews",
		zap.String("organization_id", conn.OrganizationID.String()),
		zap.String("business_id", conn.BusinessID.String()),
		zap.String("platform", conn.Platform),
		zap.Int("fetched", len(fetched)),
		zap.Int("inserted", inserted))

	if inserted > 0 {
		s.notifyNewReviews(ctx, conn, fresh, inserted)
	}
	return inserted, nil
}

// locationFor maps Google connections to the location registered under the same resource name.
func (s *platformService) locationFor(ctx context.Context, conn *models.PlatformConnection) *uuid.UUID {
	if conn.Platform != models.PlatformGoogle || conn.ExternalAccountID == "" {
		return nil
	}
	loc, err := s.locationRepo.GetByGoogleName(ctx, conn.ExternalAccountID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.Warn("Failed to look up location for google connection", zap.Error(err))
		}
		return nil
	}
	return &loc.ID
}

func (s *platformService) notifyNewReviews(ctx context.Context, conn *models.PlatformConnection, fresh []*models.Review, inserted int) {
	businessID := conn.BusinessID
	noun := pluralize("review", inserted)
	s.notifications.Notify(ctx, &models.Notification{
		OrganizationID: conn.OrganizationID,
		BusinessID:     &businessID,
		Type:           models.NotificationNewReviews,
		Title:          fmt.Sprintf("%d new %s %s", inserted, platformTitle(conn.Platform), noun),
		Message:        fmt.Sprintf("%d new %s arrived from %s.", inserted, noun, platformTitle(conn.Platform)),
		Data:           map[string]any{"platform": conn.Platform, "count": inserted},
	})

	for _, r := range fresh {
		if r.Rating > 2 {
			continue
		}
		s.notifications.Notify(ctx, &models.Notification{
			OrganizationID: conn.OrganizationID,
			BusinessID:     &businessID,
			Type:           models.NotificationNegativeReview,
			Title:          fmt.Sprintf("New %d-star %s review", r.Rating, platformTitle(conn.Platform)),
			Message:        logging.TruncateString(r.Text, 200),
			Data:           map[string]any{"platform": conn.Platform, "review_id": r.ID.String()},
		})
	}
}

func pluralize(noun string, n int) string {
	if n == 1 {
		return noun
	}
	return inflection.Plural(noun)
}

func platformTitle(platform string) string {
	if platform == "" {
		return platform
	}
	return strings.ToUpper(platform[:1]) + platform[1:]
}

var _ PlatformService = (*platformService)(nil)
var _ ReplyPoster = (*platformService)(nil)
