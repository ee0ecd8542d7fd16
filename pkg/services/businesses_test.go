package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
)

func TestBusinessService_CreateStoresDefaultAISettings(t *testing.T) {
	aiRepo := newFakeAISettingsRepo()
	svc := NewBusinessService(newFakeBusinessRepo(), aiRepo, zap.NewNop())
	orgID := uuid.New()

	b, err := svc.Create(context.Background(), &models.Business{OrganizationID: orgID, Name: "  Corner Bakery "})
	require.NoError(t, err)
	assert.Equal(t, "Corner Bakery", b.Name)

	settings, err := aiRepo.Get(context.Background(), orgID, b.ID)
	require.NoError(t, err)
	assert.False(t, settings.AutoReplyEnabled)
	assert.Equal(t, 4, settings.MinRating)
}

func TestBusinessService_RejectsBlankName(t *testing.T) {
	svc := NewBusinessService(newFakeBusinessRepo(), newFakeAISettingsRepo(), zap.NewNop())

	_, err := svc.Create(context.Background(), &models.Business{OrganizationID: uuid.New(), Name: " "})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestBusinessService_DeleteHidesBusiness(t *testing.T) {
	repo := newFakeBusinessRepo()
	svc := NewBusinessService(repo, newFakeAISettingsRepo(), zap.NewNop())
	ctx := context.Background()
	orgID := uuid.New()

	b, err := svc.Create(ctx, &models.Business{OrganizationID: orgID, Name: "Cafe"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, orgID, b.ID))

	_, err = svc.Get(ctx, orgID, b.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	list, err := svc.List(ctx, orgID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func newLocationTestService(t *testing.T) (*accessFixture, LocationService) {
	f := newAccessFixture(t)
	svc := NewLocationService(f.locations, f.groups, newFakeBusinessRepo(), f.users, f.svc, zap.NewNop())
	return f, svc
}

func TestLocationService_ListFiltersThroughResolver(t *testing.T) {
	f, svc := newLocationTestService(t)
	ctx := context.Background()

	_, err := f.svc.GrantGroup(ctx, f.orgID, f.manager.ID, f.downtown.ID)
	require.NoError(t, err)

	locs, err := svc.List(ctx, f.orgID, f.manager.ID)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, f.loc3.ID, locs[0].ID)

	all, err := svc.List(ctx, f.orgID, f.admin.ID)
	require.NoError(t, err)
	assert.Len(t, all, 5, "admins also see the inactive location")
}

func TestLocationService_ListWithoutGrantsIsEmpty(t *testing.T) {
	f, svc := newLocationTestService(t)

	locs, err := svc.List(context.Background(), f.orgID, f.manager.ID)
	require.NoError(t, err)
	assert.NotNil(t, locs)
	assert.Empty(t, locs)
}

func TestLocationService_GetHidesInaccessible(t *testing.T) {
	f, svc := newLocationTestService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, f.orgID, f.manager.ID, f.loc1.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	loc, err := svc.Get(ctx, f.orgID, f.admin.ID, f.loc4.ID)
	require.NoError(t, err)
	assert.False(t, loc.IsActive)
}

func TestLocationService_CreateValidatesReferences(t *testing.T) {
	f, svc := newLocationTestService(t)
	ctx := context.Background()

	foreignGroup := uuid.New()
	_, err := svc.Create(ctx, &models.Location{OrganizationID: f.orgID, Name: "New", GroupID: &foreignGroup})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	outsider := &models.User{ID: uuid.New(), Role: models.RoleManager}
	f.users.users[outsider.ID] = outsider
	_, err = svc.Create(ctx, &models.Location{OrganizationID: f.orgID, Name: "New", ManagerID: &outsider.ID})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	loc, err := svc.Create(ctx, &models.Location{OrganizationID: f.orgID, Name: "New", GroupID: &f.metro.ID, ManagerID: &f.manager.ID})
	require.NoError(t, err)
	assert.True(t, loc.IsActive)
}
