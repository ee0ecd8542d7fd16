package platforms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// YelpConfig configures the Yelp adapter. APIKey authenticates Fusion calls when
// a connection has no OAuth token.
type YelpConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	APIKey       string
	APIBaseURL   string
	Endpoint     *oauth2.Endpoint
	HTTPClient   *http.Client
}

// YelpEndpoint is Yelp's business-owner OAuth endpoint.
var YelpEndpoint = oauth2.Endpoint{
	AuthURL:  "https://biz.yelp.com/oauth2/authorize",
	TokenURL: "https://api.yelp.com/oauth2/token",
}

const yelpPageSize = 50

// YelpAdapter reads reviews from the Yelp Fusion API. Yelp does not accept replies.
type YelpAdapter struct {
	oauth   *oauth2.Config
	api     *apiClient
	apiKey  string
	baseURL string
	logger  *zap.Logger
}

// NewYelpAdapter creates a Yelp adapter.
func NewYelpAdapter(cfg YelpConfig, logger *zap.Logger) *YelpAdapter {
	endpoint := YelpEndpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = defaultHTTPClient
	}
	return &YelpAdapter{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"r2r_business_owner"},
		},
		api:     &apiClient{platform: "yelp", http: client},
		apiKey:  cfg.APIKey,
		baseURL: orDefault(cfg.APIBaseURL, "https://api.yelp.com/v3"),
		logger:  logger.Named("yelp"),
	}
}

func (y *YelpAdapter) Platform() string { return "yelp" }

func (y *YelpAdapter) AuthorizeURL(state string) string {
	return y.oauth.AuthCodeURL(state)
}

func (y *YelpAdapter) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	tok, err := y.oauth.Exchange(withClient(ctx, y.api.http), code)
	if err != nil {
		return nil, fmt.Errorf("yelp token exchange failed: %w", err)
	}
	return tokenSet(tok), nil
}

func (y *YelpAdapter) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	tok, err := y.oauth.TokenSource(withClient(ctx, y.api.http), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("yelp token refresh failed: %w", err)
	}
	ts := tokenSet(tok)
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

// DiscoverAccount is not available on Yelp; the business ID is supplied when connecting.
func (y *YelpAdapter) DiscoverAccount(context.Context, string) (*Account, error) {
	return nil, ErrNoAccount
}

func (y *YelpAdapter) bearer(accessToken string) string {
	if accessToken != "" {
		return accessToken
	}
	return y.apiKey
}

type yelpReview struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Rating      int    `json:"rating"`
	TimeCreated string `json:"time_created"`
	User        struct {
		Name     string `json:"name"`
		ImageURL string `json:"image_url"`
	} `json:"user"`
}

// yelpTime parses Yelp's "2006-01-02 15:04:05" timestamps, which are Pacific time.
func yelpTime(s string) (time.Time, error) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		loc = time.UTC
	}
	return time.ParseInLocation(time.DateTime, s, loc)
}

// FetchReviews pages by offset until Yelp reports no more reviews.
func (y *YelpAdapter) FetchReviews(ctx context.Context, accessToken, accountID string, since time.Time) ([]Review, error) {
	var out []Review
	for offset := 0; ; offset += yelpPageSize {
		q := url.Values{
			"limit":   {strconv.Itoa(yelpPageSize)},
			"offset":  {strconv.Itoa(offset)},
			"sort_by": {"newest"},
		}
		var page struct {
			Reviews []yelpReview `json:"reviews"`
			Total   int          `json:"total"`
		}
		u := fmt.Sprintf("%s/businesses/%s/reviews?%s", y.baseURL, url.PathEscape(accountID), q.Encode())
		if err := y.api.do(ctx, http.MethodGet, u, y.bearer(accessToken), nil, &page); err != nil {
			return nil, err
		}

		for _, r := range page.Reviews {
			posted, err := yelpTime(r.TimeCreated)
			if err != nil {
				y.logger.Debug("Skipping review with unparseable time", zap.String("review_id", r.ID), zap.Error(err))
				continue
			}
			if posted.Before(since) {
				continue
			}
			out = append(out, Review{
				ExternalID:        r.ID,
				ReviewerName:      r.User.Name,
				ReviewerAvatarURL: r.User.ImageURL,
				Rating:            r.Rating,
				Text:              r.Text,
				URL:               r.URL,
				PostedAt:          posted,
			})
		}

		if len(page.Reviews) == 0 || offset+len(page.Reviews) >= page.Total {
			return out, nil
		}
	}
}

func (y *YelpAdapter) PostReply(context.Context, string, string, string, string) error {
	return ErrReplyUnsupported
}

var _ Adapter = (*YelpAdapter)(nil)
