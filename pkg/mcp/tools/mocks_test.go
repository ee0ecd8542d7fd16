package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
	"github.com/reviewpilot/reviewpilot-engine/pkg/services"
)

type mockLocationService struct {
	locations []*models.Location
	err       error
	userID    uuid.UUID
}

func (m *mockLocationService) Create(_ context.Context, l *models.Location) (*models.Location, error) {
	return l, m.err
}

func (m *mockLocationService) Get(_ context.Context, _, _, _ uuid.UUID) (*models.Location, error) {
	return nil, m.err
}

func (m *mockLocationService) List(_ context.Context, _, userID uuid.UUID) ([]*models.Location, error) {
	m.userID = userID
	return m.locations, m.err
}

func (m *mockLocationService) Update(_ context.Context, l *models.Location) (*models.Location, error) {
	return l, m.err
}

func (m *mockLocationService) Delete(_ context.Context, _, _ uuid.UUID) error {
	return m.err
}

type mockReviewService struct {
	reviews []*models.Review
	total   int
	stats   *models.ReviewStats
	draft   string
	err     error
	filter  *models.ReviewFilter
	drafted uuid.UUID
}

func (m *mockReviewService) List(_ context.Context, _, _ uuid.UUID, filter *models.ReviewFilter) ([]*models.Review, int, error) {
	m.filter = filter
	return m.reviews, m.total, m.err
}

func (m *mockReviewService) Get(_ context.Context, _, _, _ uuid.UUID) (*models.Review, error) {
	return nil, m.err
}

func (m *mockReviewService) Respond(_ context.Context, _, _, _ uuid.UUID, _ string) (*models.Review, error) {
	return nil, m.err
}

func (m *mockReviewService) Draft(_ context.Context, _, _, id uuid.UUID) (string, error) {
	m.drafted = id
	return m.draft, m.err
}

func (m *mockReviewService) UpdateSentiment(_ context.Context, _, _, _ uuid.UUID, _ string) error {
	return m.err
}

func (m *mockReviewService) Analytics(_ context.Context, _, _, _ uuid.UUID) (*models.ReviewStats, error) {
	return m.stats, m.err
}

var (
	_ services.LocationService = (*mockLocationService)(nil)
	_ services.ReviewService   = (*mockReviewService)(nil)
)

type toolResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// callTool sends a tools/call request through the server the way the HTTP transport does.
func callTool(t *testing.T, s *server.MCPServer, p *auth.Principal, name string, args map[string]any) toolResponse {
	t.Helper()
	ctx := context.Background()
	if p != nil {
		ctx = auth.SetPrincipal(ctx, p)
	}

	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.HandleMessage(ctx, msg))
	require.NoError(t, err)

	var resp toolResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func (r toolResponse) text(t *testing.T) string {
	t.Helper()
	require.Nil(t, r.Error, "unexpected protocol error")
	require.NotEmpty(t, r.Result.Content)
	return r.Result.Content[0].Text
}
