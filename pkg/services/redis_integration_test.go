//go:build integration

package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/testhelpers"
)

func TestRedisOAuthStateStore_SingleUse(t *testing.T) {
	client := testhelpers.GetRedis(t)
	store := NewOAuthStateStore(client)
	ctx := context.Background()

	st := &OAuthState{
		Platform:       "google",
		OrganizationID: uuid.New(),
		BusinessID:     uuid.New(),
		UserID:         uuid.New(),
		ReturnURL:      "http://localhost:5173/settings/platforms",
	}
	token, err := store.Issue(ctx, st)
	require.NoError(t, err)

	ttl, err := client.TTL(ctx, oauthStateKeyPrefix+token).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, OAuthStateTTL)

	got, err := store.Consume(ctx, token, "google")
	require.NoError(t, err)
	assert.Equal(t, st, got)

	_, err = store.Consume(ctx, token, "google")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOAuthState)
}

func TestRedisOAuthStateStore_PlatformMismatchBurnsToken(t *testing.T) {
	store := NewOAuthStateStore(testhelpers.GetRedis(t))
	ctx := context.Background()

	token, err := store.Issue(ctx, &OAuthState{Platform: "facebook", OrganizationID: uuid.New()})
	require.NoError(t, err)

	_, err = store.Consume(ctx, token, "google")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOAuthState)

	_, err = store.Consume(ctx, token, "facebook")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOAuthState)
}

func TestRedisLeaser_OneHolderPerJob(t *testing.T) {
	client := testhelpers.GetRedis(t)
	ctx := context.Background()

	first := NewLeaser(client)
	second := NewLeaser(client)

	ok, err := first.Acquire(ctx, "review_sync", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx, "review_sync", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second instance must not run a job another instance holds")

	ok, err = second.Acquire(ctx, "auto_reply", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
