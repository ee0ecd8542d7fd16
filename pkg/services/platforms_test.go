package services

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/platforms"
)

// fakeAdapter is a scripted platforms.Adapter that records its calls.
type fakeAdapter struct {
	platform    string
	tokens      *platforms.TokenSet
	refreshed   *platforms.TokenSet
	account     *platforms.Account
	accountErr  error
	reviews     []platforms.Review
	fetchErr    error
	replyErr    error
	fetchSince  []time.Time
	fetchTokens []string
	replies     []string
	refreshes   int
}

func (a *fakeAdapter) Platform() string { return a.platform }

func (a *fakeAdapter) AuthorizeURL(state string) string {
	return "https://auth.example/" + a.platform + "?state=" + url.QueryEscape(state)
}

func (a *fakeAdapter) Exchange(_ context.Context, code string) (*platforms.TokenSet, error) {
	if code == "bad" {
		return nil, errors.New("invalid_grant")
	}
	return a.tokens, nil
}

func (a *fakeAdapter) Refresh(_ context.Context, _ string) (*platforms.TokenSet, error) {
	a.refreshes++
	return a.refreshed, nil
}

func (a *fakeAdapter) DiscoverAccount(_ context.Context, _ string) (*platforms.Account, error) {
	if a.accountErr != nil {
		return nil, a.accountErr
	}
	return a.account, nil
}

func (a *fakeAdapter) FetchReviews(_ context.Context, accessToken, _ string, since time.Time) ([]platforms.Review, error) {
	a.fetchSince = append(a.fetchSince, since)
	a.fetchTokens = append(a.fetchTokens, accessToken)
	return a.reviews, a.fetchErr
}

func (a *fakeAdapter) PostReply(_ context.Context, _, accountID, reviewExternalID, text string) error {
	a.replies = append(a.replies, accountID+"|"+reviewExternalID+"|"+text)
	return a.replyErr
}

var _ platforms.Adapter = (*fakeAdapter)(nil)

type platformFixture struct {
	orgID      uuid.UUID
	business   *models.Business
	userID     uuid.UUID
	google     *fakeAdapter
	yelp       *fakeAdapter
	states     OAuthStateStore
	conns      *fakeConnectionRepo
	reviews    *fakeReviewRepo
	locations  *fakeLocationRepo
	notifyRepo *fakeNotificationRepo
	svc        *platformService
}

func newPlatformFixture(t *testing.T) *platformFixture {
	t.Helper()
	f := &platformFixture{orgID: uuid.New(), userID: uuid.New()}
	f.business = &models.Business{ID: uuid.New(), OrganizationID: f.orgID, Name: "Corner Cafe"}
	expires := time.Now().Add(time.Hour)
	f.google = &fakeAdapter{
		platform: models.PlatformGoogle,
		tokens:   &platforms.TokenSet{AccessToken: "g-access", RefreshToken: "g-refresh", ExpiresAt: &expires},
		account:  &platforms.Account{ID: "accounts/1/locations/9", Name: "Corner Cafe"},
	}
	f.yelp = &fakeAdapter{
		platform:   models.PlatformYelp,
		tokens:     &platforms.TokenSet{AccessToken: "y-access"},
		accountErr: platforms.ErrNoAccount,
	}
	f.states = NewMemoryOAuthStateStore()
	f.conns = newFakeConnectionRepo()
	f.reviews = &fakeReviewRepo{}
	f.locations = newFakeLocationRepo()
	f.notifyRepo = &fakeNotificationRepo{}

	svc := NewPlatformService(
		platforms.NewRegistry(f.google, f.yelp),
		f.states,
		f.conns,
		newFakeBusinessRepo(f.business),
		f.reviews,
		f.locations,
		NewNotificationService(f.notifyRepo, zap.NewNop()),
		passthroughTenantCtx,
		passthroughUnscopedCtx,
		zap.NewNop(),
	)
	f.svc = svc.(*platformService)
	return f
}

func (f *platformFixture) connect(t *testing.T, platform string) *models.PlatformConnection {
	t.Helper()
	conn := &models.PlatformConnection{
		ID:                uuid.New(),
		OrganizationID:    f.orgID,
		BusinessID:        f.business.ID,
		Platform:          platform,
		ExternalAccountID: "acct-" + platform,
		AccessToken:       "token-" + platform,
		Status:            models.ConnectionActive,
	}
	require.NoError(t, f.conns.Upsert(context.Background(), conn))
	return conn
}

func stateFromURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestPlatformService_ConnectRoundTrip(t *testing.T) {
	f := newPlatformFixture(t)
	ctx := context.Background()

	authURL, err := f.svc.BeginConnect(ctx, &OAuthState{
		Platform:       models.PlatformGoogle,
		OrganizationID: f.orgID,
		BusinessID:     f.business.ID,
		UserID:         f.userID,
		ReturnURL:      "/settings/platforms",
	})
	require.NoError(t, err)
	state := stateFromURL(t, authURL)
	require.NotEmpty(t, state)

	conn, st, err := f.svc.CompleteConnect(ctx, models.PlatformGoogle, state, "good")
	require.NoError(t, err)
	assert.Equal(t, "/settings/platforms", st.ReturnURL)
	assert.Equal(t, "accounts/1/locations/9", conn.ExternalAccountID)
	assert.Equal(t, "g-access", conn.AccessToken)
	assert.Equal(t, "g-refresh", conn.RefreshToken)
	assert.Equal(t, models.ConnectionActive, conn.Status)
	require.NotNil(t, conn.ConnectedBy)
	assert.Equal(t, f.userID, *conn.ConnectedBy)

	stored, err := f.conns.Get(ctx, f.orgID, f.business.ID, models.PlatformGoogle)
	require.NoError(t, err)
	assert.Equal(t, conn.ID, stored.ID)

	// state is single use
	_, _, err = f.svc.CompleteConnect(ctx, models.PlatformGoogle, state, "good")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOAuthState)
}

func TestPlatformService_CompleteConnectRejectsStateForOtherPlatform(t *testing.T) {
	f := newPlatformFixture(t)
	ctx := context.Background()

	authURL, err := f.svc.BeginConnect(ctx, &OAuthState{Platform: models.PlatformGoogle, OrganizationID: f.orgID, BusinessID: f.business.ID})
	require.NoError(t, err)

	_, _, err = f.svc.CompleteConnect(ctx, models.PlatformYelp, stateFromURL(t, authURL), "good")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOAuthState)
}

func TestPlatformService_BeginConnectValidation(t *testing.T) {
	f := newPlatformFixture(t)
	ctx := context.Background()

	_, err := f.svc.BeginConnect(ctx, &OAuthState{Platform: "myspace", OrganizationID: f.orgID, BusinessID: f.business.ID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.BeginConnect(ctx, &OAuthState{Platform: models.PlatformGoogle, OrganizationID: uuid.New(), BusinessID: f.business.ID})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.BeginConnect(ctx, &OAuthState{Platform: models.PlatformYelp, OrganizationID: f.orgID, BusinessID: f.business.ID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPlatformService_YelpUsesAccountFromState(t *testing.T) {
	f := newPlatformFixture(t)
	ctx := context.Background()

	authURL, err := f.svc.BeginConnect(ctx, &OAuthState{
		Platform:       models.PlatformYelp,
		OrganizationID: f.orgID,
		BusinessID:     f.business.ID,
		AccountID:      "corner-cafe-sf",
	})
	require.NoError(t, err)

	conn, _, err := f.svc.CompleteConnect(ctx, models.PlatformYelp, stateFromURL(t, authURL), "good")
	require.NoError(t, err)
	assert.Equal(t, "corner-cafe-sf", conn.ExternalAccountID)
}

func TestPlatformService_PageTokenReplacesUserToken(t *testing.T) {
	f := newPlatformFixture(t)
	f.google.account.AccessToken = "page-token"
	ctx := context.Background()

	authURL, err := f.svc.BeginConnect(ctx, &OAuthState{Platform: models.PlatformGoogle, OrganizationID: f.orgID, BusinessID: f.business.ID})
	require.NoError(t, err)

	conn, _, err := f.svc.CompleteConnect(ctx, models.PlatformGoogle, stateFromURL(t, authURL), "good")
	require.NoError(t, err)
	assert.Equal(t, "page-token", conn.AccessToken)
	assert.Nil(t, conn.TokenExpiresAt)
}

func TestPlatformService_EnsureFreshToken(t *testing.T) {
	f := newPlatformFixture(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	newExpiry := now.Add(time.Hour)
	f.google.refreshed = &platforms.TokenSet{AccessToken: "fresh", ExpiresAt: &newExpiry}

	conn := f.connect(t, models.PlatformGoogle)
	conn.RefreshToken = "keep-me"

	later := now.Add(30 * time.Minute)
	conn.TokenExpiresAt = &later
	require.NoError(t, f.svc.EnsureFreshToken(context.Background(), conn))
	assert.Equal(t, 0, f.google.refreshes)

	soon := now.Add(4 * time.Minute)
	conn.TokenExpiresAt = &soon
	require.NoError(t, f.svc.EnsureFreshToken(context.Background(), conn))
	assert.Equal(t, 1, f.google.refreshes)
	assert.Equal(t, "fresh", conn.AccessToken)
	assert.Equal(t, "keep-me", conn.RefreshToken)
	assert.Equal(t, newExpiry, *conn.TokenExpiresAt)

	conn.RefreshToken = ""
	conn.TokenExpiresAt = &soon
	err := f.svc.EnsureFreshToken(context.Background(), conn)
	assert.ErrorIs(t, err, apperrors.ErrPlatformNotConnected)
}

func TestPlatformService_SyncReviewsSkipsExistingAndNotifies(t *testing.T) {
	f := newPlatformFixture(t)
	ctx := context.Background()
	conn := f.connect(t, models.PlatformYelp)
	posted := time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)

	f.reviews.reviews = append(f.reviews.reviews, &models.Review{
		ID: uuid.New(), OrganizationID: f.orgID, BusinessID: f.business.ID,
		Platform: models.PlatformYelp, ExternalID: "r1", Rating: 5,
	})
	f.yelp.reviews = []platforms.Review{
		{ExternalID: "r1", Rating: 5, PostedAt: posted},
		{ExternalID: "r2", Rating: 4, Text: "Great coffee", PostedAt: posted},
		{ExternalID: "r3", Rating: 1, Text: "Cold food", PostedAt: posted},
		{ExternalID: "r3", Rating: 1, Text: "Cold food", PostedAt: posted},
	}

	n, err := f.svc.SyncReviews(ctx, f.orgID, f.business.ID, models.PlatformYelp)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, f.reviews.reviews, 3)

	byExternal := map[string]*models.Review{}
	for _, r := range f.reviews.reviews {
		byExternal[r.ExternalID] = r
	}
	assert.Equal(t, models.SentimentPositive, byExternal["r2"].Sentiment)
	assert.Equal(t, models.SentimentNegative, byExternal["r3"].Sentiment)
	assert.Contains(t, f.conns.syncedAt, conn.ID)

	news := f.notifyRepo.byType(models.NotificationNewReviews)
	require.Len(t, news, 1)
	assert.Equal(t, "2 new Yelp reviews", news[0].Title)
	require.Len(t, f.notifyRepo.byType(models.NotificationNegativeReview), 1)

	// the next sync starts where this one began
	firstSync := f.conns.syncedAt[conn.ID]
	f.yelp.reviews = nil
	n, err = f.svc.SyncReviews(ctx, f.orgID, f.business.ID, models.PlatformYelp)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Len(t, f.yelp.fetchSince, 2)
	assert.True(t, f.yelp.fetchSince[0].IsZero())
	assert.Equal(t, firstSync, f.yelp.fetchSince[1])
	assert.Len(t, f.notifyRepo.byType(models.NotificationNewReviews), 1)
}

func TestPlatformService_SyncAssignsGoogleLocation(t *testing.T) {
	f := newPlatformFixture(t)
	loc := &models.Location{ID: uuid.New(), OrganizationID: f.orgID, Name: "Main St", GoogleLocationName: "acct-google", IsActive: true}
	f.locations.locations[loc.ID] = loc
	f.connect(t, models.PlatformGoogle)
	f.google.reviews = []platforms.Review{{ExternalID: "g1", Rating: 3, PostedAt: time.Now()}}

	n, err := f.svc.SyncReviews(context.Background(), f.orgID, f.business.ID, models.PlatformGoogle)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NotNil(t, f.reviews.reviews[0].LocationID)
	assert.Equal(t, loc.ID, *f.reviews.reviews[0].LocationID)
	assert.Equal(t, "1 new Google review", f.notifyRepo.byType(models.NotificationNewReviews)[0].Title)
}

func TestPlatformService_SyncFailureMarksConnection(t *testing.T) {
	f := newPlatformFixture(t)
	conn := f.connect(t, models.PlatformYelp)
	f.yelp.fetchErr = &platforms.APIError{Platform: "yelp", StatusCode: 401, Body: "unauthorized"}

	_, err := f.svc.SyncReviews(context.Background(), f.orgID, f.business.ID, models.PlatformYelp)
	require.Error(t, err)
	assert.Contains(t, f.conns.lastError[conn.ID], "401")
	assert.Equal(t, models.ConnectionError, conn.Status)
	assert.Len(t, f.notifyRepo.byType(models.NotificationSyncFailed), 1)
}

func TestPlatformService_SyncWithoutConnection(t *testing.T) {
	f := newPlatformFixture(t)
	_, err := f.svc.SyncReviews(context.Background(), f.orgID, f.business.ID, models.PlatformGoogle)
	assert.ErrorIs(t, err, apperrors.ErrPlatformNotConnected)
}

func TestPlatformService_SyncAllContinuesPastFailures(t *testing.T) {
	f := newPlatformFixture(t)
	f.connect(t, models.PlatformYelp)
	f.connect(t, models.PlatformGoogle)
	f.google.fetchErr = errors.New("boom")
	f.yelp.reviews = []platforms.Review{{ExternalID: "y1", Rating: 5, PostedAt: time.Now()}}

	require.NoError(t, f.svc.SyncAll(context.Background(), []string{models.PlatformGoogle, models.PlatformYelp}))
	assert.Len(t, f.reviews.reviews, 1)
	assert.Len(t, f.google.fetchSince, 1)
}

func TestPlatformService_SyncExternalAccount(t *testing.T) {
	f := newPlatformFixture(t)
	f.connect(t, models.PlatformGoogle)
	f.google.reviews = []platforms.Review{{ExternalID: "g1", Rating: 5, PostedAt: time.Now()}}

	n, err := f.svc.SyncExternalAccount(context.Background(), models.PlatformGoogle, "acct-google")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.SyncExternalAccount(context.Background(), models.PlatformGoogle, "unknown")
	assert.ErrorIs(t, err, apperrors.ErrPlatformNotConnected)
}

func TestPlatformService_PostReply(t *testing.T) {
	f := newPlatformFixture(t)
	review := &models.Review{ID: uuid.New(), OrganizationID: f.orgID, BusinessID: f.business.ID, Platform: models.PlatformGoogle, ExternalID: "g1"}

	err := f.svc.PostReply(context.Background(), review, "Thanks!")
	assert.ErrorIs(t, err, apperrors.ErrPlatformNotConnected)

	f.connect(t, models.PlatformGoogle)
	require.NoError(t, f.svc.PostReply(context.Background(), review, "Thanks!"))
	assert.Equal(t, []string{"acct-google|g1|Thanks!"}, f.google.replies)
}

func TestPlatformService_Disconnect(t *testing.T) {
	f := newPlatformFixture(t)
	f.connect(t, models.PlatformGoogle)

	require.NoError(t, f.svc.Disconnect(context.Background(), f.orgID, f.business.ID, models.PlatformGoogle))
	conns, err := f.svc.ListConnections(context.Background(), f.orgID, f.business.ID)
	require.NoError(t, err)
	assert.Empty(t, conns)

	err = f.svc.Disconnect(context.Background(), f.orgID, f.business.ID, models.PlatformGoogle)
	assert.ErrorIs(t, err, apperrors.ErrPlatformNotConnected)
}
