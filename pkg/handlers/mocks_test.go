package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/google/uuid"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

// withPrincipal builds a request as the tenant middleware would hand it to a handler.
func withPrincipal(method, target string, body io.Reader, p *auth.Principal) *http.Request {
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(auth.SetPrincipal(req.Context(), p))
}

func testPrincipal(role string) *auth.Principal {
	return &auth.Principal{
		UserID:         uuid.New(),
		OrganizationID: uuid.New(),
		Role:           role,
		Subject:        "auth0|test",
	}
}

type mockReviewService struct {
	reviews   []*models.Review
	total     int
	review    *models.Review
	draft     string
	stats     *models.ReviewStats
	err       error
	filter    *models.ReviewFilter
	respondTo string
}

func (m *mockReviewService) List(_ context.Context, _, _ uuid.UUID, filter *models.ReviewFilter) ([]*models.Review, int, error) {
	m.filter = filter
	return m.reviews, m.total, m.err
}

func (m *mockReviewService) Get(_ context.Context, _, _, _ uuid.UUID) (*models.Review, error) {
	return m.review, m.err
}

func (m *mockReviewService) Respond(_ context.Context, _, _, _ uuid.UUID, text string) (*models.Review, error) {
	m.respondTo = text
	return m.review, m.err
}

func (m *mockReviewService) Draft(_ context.Context, _, _, _ uuid.UUID) (string, error) {
	return m.draft, m.err
}

func (m *mockReviewService) UpdateSentiment(_ context.Context, _, _, _ uuid.UUID, _ string) error {
	return m.err
}

func (m *mockReviewService) Analytics(_ context.Context, _, _, _ uuid.UUID) (*models.ReviewStats, error) {
	return m.stats, m.err
}

type mockPlatformService struct {
	authURL      string
	beginState   *services.OAuthState
	conn         *models.PlatformConnection
	state        *services.OAuthState
	completeArgs []string
	inserted     int
	err          error
}

func (m *mockPlatformService) BeginConnect(_ context.Context, st *services.OAuthState) (string, error) {
	m.beginState = st
	return m.authURL, m.err
}

func (m *mockPlatformService) CompleteConnect(_ context.Context, platform, state, code string) (*models.PlatformConnection, *services.OAuthState, error) {
	m.completeArgs = []string{platform, state, code}
	return m.conn, m.state, m.err
}

func (m *mockPlatformService) ListConnections(_ context.Context, _, _ uuid.UUID) ([]*models.PlatformConnection, error) {
	return []*models.PlatformConnection{m.conn}, m.err
}

func (m *mockPlatformService) Disconnect(_ context.Context, _, _ uuid.UUID, _ string) error {
	return m.err
}

func (m *mockPlatformService) SyncReviews(_ context.Context, _, _ uuid.UUID, _ string) (int, error) {
	return m.inserted, m.err
}

func (m *mockPlatformService) SyncAll(_ context.Context, _ []string) error {
	return m.err
}

func (m *mockPlatformService) SyncExternalAccount(_ context.Context, _, _ string) (int, error) {
	return m.inserted, m.err
}

func (m *mockPlatformService) EnsureFreshToken(_ context.Context, _ *models.PlatformConnection) error {
	return m.err
}

func (m *mockPlatformService) PostReply(_ context.Context, _ *models.Review, _ string) error {
	return m.err
}

type mockCampaignService struct {
	campaign *models.Campaign
	updated  *models.Campaign
	err      error
}

func (m *mockCampaignService) Create(_ context.Context, c *models.Campaign) (*models.Campaign, error) {
	m.updated = c
	return c, m.err
}

func (m *mockCampaignService) List(_ context.Context, _, _ uuid.UUID) ([]*models.Campaign, error) {
	return []*models.Campaign{m.campaign}, m.err
}

func (m *mockCampaignService) Get(_ context.Context, _, _ uuid.UUID) (*models.Campaign, error) {
	if m.campaign == nil {
		return nil, m.err
	}
	c := *m.campaign
	return &c, nil
}

func (m *mockCampaignService) UpdateDraft(_ context.Context, c *models.Campaign) (*models.Campaign, error) {
	m.updated = c
	return c, m.err
}

func (m *mockCampaignService) DeleteDraft(_ context.Context, _, _ uuid.UUID) error {
	return m.err
}

func (m *mockCampaignService) Send(_ context.Context, _, _ uuid.UUID) (*models.Campaign, error) {
	if m.err != nil {
		return nil, m.err
	}
	c := *m.campaign
	c.Status = models.CampaignSending
	return &c, nil
}

func (m *mockCampaignService) Messages(_ context.Context, _, _ uuid.UUID) ([]*models.SmsMessage, error) {
	return nil, m.err
}

func (m *mockCampaignService) Shutdown(context.Context) error { return nil }

type mockSmsService struct {
	usage *models.SmsUsage
	err   error
	to    string
}

func (m *mockSmsService) Send(_ context.Context, organizationID, businessID uuid.UUID, to, body string) (*models.SmsMessage, error) {
	m.to = to
	if m.err != nil {
		return nil, m.err
	}
	return &models.SmsMessage{OrganizationID: organizationID, BusinessID: businessID, ToNumber: to, Body: body, Status: models.SmsSent}, nil
}

func (m *mockSmsService) Usage(_ context.Context, _ uuid.UUID) (*models.SmsUsage, error) {
	return m.usage, m.err
}

type mockTeamService struct {
	invitation *models.TeamInvitation
	err        error
	roleArgs   []any
}

func (m *mockTeamService) Invite(_ context.Context, organizationID, inviterID uuid.UUID, inv *models.TeamInvitation) (*models.TeamInvitation, error) {
	if m.err != nil {
		return nil, m.err
	}
	inv.ID = uuid.New()
	inv.OrganizationID = organizationID
	inv.InvitedBy = &inviterID
	inv.Token = "tok3n"
	inv.Status = models.InvitationPending
	m.invitation = inv
	return inv, nil
}

func (m *mockTeamService) ListInvitations(_ context.Context, _ uuid.UUID) ([]*models.TeamInvitation, error) {
	return []*models.TeamInvitation{m.invitation}, m.err
}

func (m *mockTeamService) RevokeInvitation(_ context.Context, _, _ uuid.UUID) error {
	return m.err
}

func (m *mockTeamService) Accept(_ context.Context, _ uuid.UUID, _ string) (*models.TeamInvitation, error) {
	return m.invitation, m.err
}

func (m *mockTeamService) Members(_ context.Context, _ uuid.UUID) ([]*models.User, error) {
	return nil, m.err
}

func (m *mockTeamService) ChangeRole(_ context.Context, organizationID, actorID, userID uuid.UUID, role string) error {
	m.roleArgs = []any{organizationID, actorID, userID, role}
	return m.err
}

func (m *mockTeamService) RemoveMember(_ context.Context, _, _, _ uuid.UUID) error {
	return m.err
}

type mockUserService struct {
	profile         *services.Profile
	err             error
	invitationToken string
	acceptToken     string
}

func (m *mockUserService) ProvisionFromClaims(_ context.Context, _ *auth.Claims, invitationToken string) (*services.Profile, error) {
	m.invitationToken = invitationToken
	return m.profile, m.err
}

func (m *mockUserService) AcceptInvitation(_ context.Context, _ *auth.Claims, token string) (*services.Profile, error) {
	m.acceptToken = token
	return m.profile, m.err
}

func (m *mockUserService) Me(_ context.Context, _ uuid.UUID) (*services.Profile, error) {
	return m.profile, m.err
}

func (m *mockUserService) ResolvePrincipal(_ context.Context, _ string) (*auth.Principal, error) {
	return nil, m.err
}

type mockSyncer struct {
	calls [][2]string
	err   error
}

func (m *mockSyncer) SyncExternalAccount(_ context.Context, platform, account string) (int, error) {
	m.calls = append(m.calls, [2]string{platform, account})
	return 1, m.err
}

var (
	_ services.ReviewService   = (*mockReviewService)(nil)
	_ services.PlatformService = (*mockPlatformService)(nil)
	_ services.CampaignService = (*mockCampaignService)(nil)
	_ services.SmsService      = (*mockSmsService)(nil)
	_ services.TeamService     = (*mockTeamService)(nil)
	_ services.UserService     = (*mockUserService)(nil)
	_ AccountSyncer            = (*mockSyncer)(nil)
)
