package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
)

// OAuthStateTTL bounds how long a user has to finish a platform authorization.
const OAuthStateTTL = 10 * time.Minute

const oauthStateKeyPrefix = "reviewpilot:oauth_state:"

// OAuthState is what a platform authorization round trip must come back to.
type OAuthState struct {
	Platform       string    `json:"platform"`
	OrganizationID uuid.UUID `json:"organization_id"`
	BusinessID     uuid.UUID `json:"business_id"`
	UserID         uuid.UUID `json:"user_id"`
	// AccountID is the listing chosen up front, for platforms without account discovery.
	AccountID string `json:"account_id,omitempty"`
	ReturnURL string `json:"return_url,omitempty"`
}

// OAuthStateStore issues single-use state tokens for platform OAuth.
type OAuthStateStore interface {
	// Issue stores st under a fresh random token.
	Issue(ctx context.Context, st *OAuthState) (string, error)
	// Consume returns and deletes the state for token. It returns ErrInvalidOAuthState when
	// the token is unknown, expired, already used, or was issued for another platform.
	Consume(ctx context.Context, token, platform string) (*OAuthState, error)
}

func newStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewOAuthStateStore returns a Redis-backed store, or an in-memory one when client is nil.
func NewOAuthStateStore(client *redis.Client) OAuthStateStore {
	if client == nil {
		return NewMemoryOAuthStateStore()
	}
	return &redisOAuthStateStore{client: client, ttl: OAuthStateTTL}
}

type redisOAuthStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func (s *redisOAuthStateStore) Issue(ctx context.Context, st *OAuthState) (string, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to encode oauth state: %w", err)
	}

	for range 3 {
		token, err := newStateToken()
		if err != nil {
			return "", err
		}
		ok, err := s.client.SetNX(ctx, oauthStateKeyPrefix+token, payload, s.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("failed to store oauth state: %w", err)
		}
		if ok {
			return token, nil
		}
	}
	return "", errors.New("failed to allocate unique oauth state")
}

func (s *redisOAuthStateStore) Consume(ctx context.Context, token, platform string) (*OAuthState, error) {
	raw, err := s.client.GetDel(ctx, oauthStateKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrInvalidOAuthState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth state: %w", err)
	}

	var st OAuthState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, apperrors.ErrInvalidOAuthState
	}
	if st.Platform != platform {
		return nil, apperrors.ErrInvalidOAuthState
	}
	return &st, nil
}

type memoryStateEntry struct {
	state     OAuthState
	expiresAt time.Time
}

type memoryOAuthStateStore struct {
	mu     sync.Mutex
	states map[string]memoryStateEntry
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryOAuthStateStore creates an in-process store. Only correct for a single instance.
func NewMemoryOAuthStateStore() OAuthStateStore {
	return &memoryOAuthStateStore{
		states: make(map[string]memoryStateEntry),
		ttl:    OAuthStateTTL,
		now:    time.Now,
	}
}

func (s *memoryOAuthStateStore) Issue(_ context.Context, st *OAuthState) (string, error) {
	token, err := newStateToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.states {
		if !now.Before(e.expiresAt) {
			delete(s.states, k)
		}
	}
	s.states[token] = memoryStateEntry{state: *st, expiresAt: now.Add(s.ttl)}
	return token, nil
}

func (s *memoryOAuthStateStore) Consume(_ context.Context, token, platform string) (*OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[token]
	if !ok {
		return nil, apperrors.ErrInvalidOAuthState
	}
	// Single-use: delete on any lookup
	delete(s.states, token)

	if !s.now().Before(entry.expiresAt) || entry.state.Platform != platform {
		return nil, apperrors.ErrInvalidOAuthState
	}
	st := entry.state
	return &st, nil
}

var (
	_ OAuthStateStore = (*redisOAuthStateStore)(nil)
	_ OAuthStateStore = (*memoryOAuthStateStore)(nil)
)
