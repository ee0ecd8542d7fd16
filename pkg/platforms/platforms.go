// Package platforms talks to the review platforms: OAuth, review fetching and replies.
// Every call is a single attempt; callers decide what to do on failure.
package platforms

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReplyUnsupported is returned by platforms that do not accept owner replies through their API.
	ErrReplyUnsupported = errors.New("platform does not support posting replies")
	// ErrNoAccount is returned when the authorized user has no business listing on the platform.
	ErrNoAccount = errors.New("no business account found for the authorized user")
	// ErrUnsupportedPlatform is returned for platform names without an adapter.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// TokenSet is the result of an authorization code exchange or a refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Scopes       string
}

// Account is the business listing a connection reads reviews from.
// AccessToken, when set, replaces the user token (Facebook page tokens).
type Account struct {
	ID          string
	Name        string
	AccessToken string
}

// Review is a review in platform-neutral form.
type Review struct {
	ExternalID        string
	ReviewerName      string
	ReviewerAvatarURL string
	Rating            int
	Text              string
	URL               string
	PostedAt          time.Time
	ResponseText      *string
	ResponseDate      *time.Time
}

// Adapter is implemented once per review platform.
type Adapter interface {
	Platform() string
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (*TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
	// DiscoverAccount finds the listing the token can manage. Platforms without
	// discovery return ErrNoAccount and the caller supplies the account ID.
	DiscoverAccount(ctx context.Context, accessToken string) (*Account, error)
	// FetchReviews returns reviews posted at or after since, following pagination to the end.
	FetchReviews(ctx context.Context, accessToken, accountID string, since time.Time) ([]Review, error)
	PostReply(ctx context.Context, accessToken, accountID, reviewExternalID, text string) error
}

// APIError is a non-2xx response from a platform API.
type APIError struct {
	Platform   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api returned status %d: %s", e.Platform, e.StatusCode, e.Body)
}

// Registry resolves adapters by platform name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns a registry holding adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Get returns the adapter for platform.
func (r *Registry) Get(platform string) (Adapter, error) {
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	return a, nil
}
