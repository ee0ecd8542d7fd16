package platforms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleConfig configures the Google Business Profile adapter.
// The base URLs default to Google's production hosts.
type GoogleConfig struct {
	ClientID         string
	ClientSecret     string
	RedirectURL      string
	AccountsBaseURL  string
	LocationsBaseURL string
	ReviewsBaseURL   string
	Endpoint         *oauth2.Endpoint
	HTTPClient       *http.Client
}

// GoogleAdapter reads and answers reviews through the Business Profile APIs.
type GoogleAdapter struct {
	oauth        *oauth2.Config
	api          *apiClient
	accountsURL  string
	locationsURL string
	reviewsURL   string
	logger       *zap.Logger
}

// NewGoogleAdapter creates a Google adapter.
func NewGoogleAdapter(cfg GoogleConfig, logger *zap.Logger) *GoogleAdapter {
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = defaultHTTPClient
	}
	return &GoogleAdapter{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"https://www.googleapis.com/auth/business.manage"},
		},
		api:          &apiClient{platform: "google", http: client},
		accountsURL:  orDefault(cfg.AccountsBaseURL, "https://mybusinessaccountmanagement.googleapis.com/v1"),
		locationsURL: orDefault(cfg.LocationsBaseURL, "https://mybusinessbusinessinformation.googleapis.com/v1"),
		reviewsURL:   orDefault(cfg.ReviewsBaseURL, "https://mybusiness.googleapis.com/v4"),
		logger:       logger.Named("google"),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (g *GoogleAdapter) Platform() string { return "google" }

// AuthorizeURL requests offline access with forced consent so Google always issues a refresh token.
func (g *GoogleAdapter) AuthorizeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (g *GoogleAdapter) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	tok, err := g.oauth.Exchange(withClient(ctx, g.api.http), code)
	if err != nil {
		return nil, fmt.Errorf("google token exchange failed: %w", err)
	}
	return tokenSet(tok), nil
}

func (g *GoogleAdapter) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	tok, err := g.oauth.TokenSource(withClient(ctx, g.api.http), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("google token refresh failed: %w", err)
	}
	ts := tokenSet(tok)
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	return ts, nil
}

// DiscoverAccount returns the first location of the first account, identified as accounts/{a}/locations/{l}.
func (g *GoogleAdapter) DiscoverAccount(ctx context.Context, accessToken string) (*Account, error) {
	var accounts struct {
		Accounts []struct {
			Name        string `json:"name"`
			AccountName string `json:"accountName"`
		} `json:"accounts"`
	}
	if err := g.api.do(ctx, http.MethodGet, g.accountsURL+"/accounts", accessToken, nil, &accounts); err != nil {
		return nil, err
	}
	if len(accounts.Accounts) == 0 {
		return nil, ErrNoAccount
	}
	account := accounts.Accounts[0].Name

	var locations struct {
		Locations []struct {
			Name  string `json:"name"`
			Title string `json:"title"`
		} `json:"locations"`
	}
	u := fmt.Sprintf("%s/%s/locations?readMask=name,title&pageSize=1", g.locationsURL, account)
	if err := g.api.do(ctx, http.MethodGet, u, accessToken, nil, &locations); err != nil {
		return nil, err
	}
	if len(locations.Locations) == 0 {
		return nil, ErrNoAccount
	}

	loc := locations.Locations[0]
	return &Account{ID: account + "/" + loc.Name, Name: loc.Title}, nil
}

var googleStars = map[string]int{"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5}

type googleReview struct {
	Name     string `json:"name"`
	ReviewID string `json:"reviewId"`
	Reviewer struct {
		DisplayName     string `json:"displayName"`
		ProfilePhotoURL string `json:"profilePhotoUrl"`
	} `json:"reviewer"`
	StarRating  string    `json:"starRating"`
	Comment     string    `json:"comment"`
	CreateTime  time.Time `json:"createTime"`
	UpdateTime  time.Time `json:"updateTime"`
	ReviewReply *struct {
		Comment    string    `json:"comment"`
		UpdateTime time.Time `json:"updateTime"`
	} `json:"reviewReply"`
}

// lastChanged is the key the reviews list is ordered by.
func (r googleReview) lastChanged() time.Time {
	if r.UpdateTime.IsZero() {
		return r.CreateTime
	}
	return r.UpdateTime
}

// FetchReviews pages by most recent change and stops at the first review not changed since
// since. Older reviews that changed recently are returned too; the caller skips known IDs.
func (g *GoogleAdapter) FetchReviews(ctx context.Context, accessToken, accountID string, since time.Time) ([]Review, error) {
	var out []Review
	pageToken := ""
	for {
		q := url.Values{"pageSize": {"50"}, "orderBy": {"updateTime desc"}}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var page struct {
			Reviews       []googleReview `json:"reviews"`
			NextPageToken string         `json:"nextPageToken"`
		}
		u := fmt.Sprintf("%s/%s/reviews?%s", g.reviewsURL, accountID, q.Encode())
		if err := g.api.do(ctx, http.MethodGet, u, accessToken, nil, &page); err != nil {
			return nil, err
		}

		for _, r := range page.Reviews {
			if r.lastChanged().Before(since) {
				return out, nil
			}
			rating, ok := googleStars[r.StarRating]
			if !ok {
				g.logger.Debug("Skipping review without star rating", zap.String("review_id", r.ReviewID))
				continue
			}
			rv := Review{
				ExternalID:        r.ReviewID,
				ReviewerName:      r.Reviewer.DisplayName,
				ReviewerAvatarURL: r.Reviewer.ProfilePhotoURL,
				Rating:            rating,
				Text:              r.Comment,
				PostedAt:          r.CreateTime,
			}
			if r.ReviewReply != nil {
				text, at := r.ReviewReply.Comment, r.ReviewReply.UpdateTime
				rv.ResponseText = &text
				rv.ResponseDate = &at
			}
			out = append(out, rv)
		}

		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

func (g *GoogleAdapter) PostReply(ctx context.Context, accessToken, accountID, reviewExternalID, text string) error {
	u := fmt.Sprintf("%s/%s/reviews/%s/reply", g.reviewsURL, accountID, url.PathEscape(reviewExternalID))
	return g.api.do(ctx, http.MethodPut, u, accessToken, map[string]string{"comment": text}, nil)
}

var _ Adapter = (*GoogleAdapter)(nil)
