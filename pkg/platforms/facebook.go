package platforms

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

// FacebookConfig configures the Facebook adapter.
type FacebookConfig struct {
	AppID        string
	AppSecret    string
	RedirectURL  string
	GraphVersion string
	GraphBaseURL string
	Endpoint     *oauth2.Endpoint
	HTTPClient   *http.Client
}

// FacebookAdapter reads page ratings and answers them as page comments.
type FacebookAdapter struct {
	oauth    *oauth2.Config
	api      *apiClient
	graphURL string
	logger   *zap.Logger
}

// NewFacebookAdapter creates a Facebook adapter.
func NewFacebookAdapter(cfg FacebookConfig, logger *zap.Logger) *FacebookAdapter {
	endpoint := facebook.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = defaultHTTPClient
	}
	base := strings.TrimSuffix(orDefault(cfg.GraphBaseURL, "https://graph.facebook.com"), "/")
	return &FacebookAdapter{
		oauth: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"pages_show_list", "pages_read_user_content", "pages_manage_engagement"},
		},
		api:      &apiClient{platform: "facebook", http: client},
		graphURL: base + "/" + orDefault(cfg.GraphVersion, "v19.0"),
		logger:   logger.Named("facebook"),
	}
}

func (f *FacebookAdapter) Platform() string { return "facebook" }

func (f *FacebookAdapter) AuthorizeURL(state string) string {
	return f.oauth.AuthCodeURL(state)
}

func (f *FacebookAdapter) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	tok, err := f.oauth.Exchange(withClient(ctx, f.api.http), code)
	if err != nil {
		return nil, fmt.Errorf("facebook token exchange failed: %w", err)
	}
	return tokenSet(tok), nil
}

// Refresh is not supported by Facebook user tokens; page tokens do not expire.
func (f *FacebookAdapter) Refresh(context.Context, string) (*TokenSet, error) {
	return nil, fmt.Errorf("facebook tokens cannot be refreshed; reconnect the page")
}

// DiscoverAccount returns the first page the user manages, with its page access token.
func (f *FacebookAdapter) DiscoverAccount(ctx context.Context, accessToken string) (*Account, error) {
	var pages struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := f.api.do(ctx, http.MethodGet, f.graphURL+"/me/accounts?fields=id,name,access_token", accessToken, nil, &pages); err != nil {
		return nil, err
	}
	if len(pages.Data) == 0 {
		return nil, ErrNoAccount
	}
	p := pages.Data[0]
	return &Account{ID: p.ID, Name: p.Name, AccessToken: p.AccessToken}, nil
}

type facebookRating struct {
	CreatedTime        string `json:"created_time"`
	Rating             int    `json:"rating"`
	RecommendationType string `json:"recommendation_type"`
	ReviewText         string `json:"review_text"`
	Reviewer           struct {
		Name string `json:"name"`
	} `json:"reviewer"`
	OpenGraphStory struct {
		ID string `json:"id"`
	} `json:"open_graph_story"`
}

// facebookTime parses Graph API timestamps such as 2024-05-01T12:00:00+0000.
func facebookTime(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05-0700", s)
}

// stars maps recommendations to stars when the legacy star rating is absent.
func (r facebookRating) stars() int {
	if r.Rating >= 1 && r.Rating <= 5 {
		return r.Rating
	}
	if r.RecommendationType == "negative" {
		return 1
	}
	return 5
}

// FetchReviews follows paging.next links until exhausted or a rating older than since.
func (f *FacebookAdapter) FetchReviews(ctx context.Context, accessToken, accountID string, since time.Time) ([]Review, error) {
	var out []Review
	next := fmt.Sprintf("%s/%s/ratings?%s", f.graphURL, url.PathEscape(accountID), url.Values{
		"fields": {"created_time,rating,recommendation_type,review_text,reviewer{name},open_graph_story{id}"},
		"limit":  {"100"},
	}.Encode())

	for next != "" {
		var page struct {
			Data   []facebookRating `json:"data"`
			Paging struct {
				Next string `json:"next"`
			} `json:"paging"`
		}
		if err := f.api.do(ctx, http.MethodGet, next, accessToken, nil, &page); err != nil {
			return nil, err
		}

		for _, r := range page.Data {
			posted, err := facebookTime(r.CreatedTime)
			if err != nil {
				f.logger.Debug("Skipping rating with unparseable time", zap.String("created_time", r.CreatedTime))
				continue
			}
			if posted.Before(since) {
				return out, nil
			}
			if r.OpenGraphStory.ID == "" {
				continue
			}
			out = append(out, Review{
				ExternalID:   r.OpenGraphStory.ID,
				ReviewerName: r.Reviewer.Name,
				Rating:       r.stars(),
				Text:         r.ReviewText,
				URL:          "https://www.facebook.com/" + r.OpenGraphStory.ID,
				PostedAt:     posted,
			})
		}
		next = page.Paging.Next
	}
	return out, nil
}

// PostReply comments on the rating's story as the page.
func (f *FacebookAdapter) PostReply(ctx context.Context, accessToken, accountID, reviewExternalID, text string) error {
	u := fmt.Sprintf("%s/%s/comments", f.graphURL, url.PathEscape(reviewExternalID))
	return f.api.do(ctx, http.MethodPost, u, accessToken, map[string]string{"message": text}, nil)
}

var _ Adapter = (*FacebookAdapter)(nil)
