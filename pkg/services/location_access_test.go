package services

import (
	"context"
	"slices"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
)

// accessFixture is an organization with a three-level group tree:
//
//	region
//	├── metro   (loc2)
//	│   └── downtown (loc3, inactive loc4)
//	└── (loc1 directly in region)
//
// plus loc5 with no group and loc6 in another organization.
type accessFixture struct {
	orgID                   uuid.UUID
	region, metro, downtown *models.LocationGroup
	loc1, loc2, loc3, loc4  *models.Location
	loc5, foreign           *models.Location
	admin, manager          *models.User
	users                   *fakeUserRepo
	locations               *fakeLocationRepo
	groups                  *fakeGroupRepo
	access                  *fakeAccessRepo
	svc                     LocationAccessService
}

func newAccessFixture(t *testing.T) *accessFixture {
	t.Helper()
	f := &accessFixture{orgID: uuid.New()}
	otherOrg := uuid.New()

	f.region = &models.LocationGroup{ID: uuid.New(), OrganizationID: f.orgID, Name: "Region", Level: 0}
	f.metro = &models.LocationGroup{ID: uuid.New(), OrganizationID: f.orgID, Name: "Metro", ParentID: &f.region.ID, Level: 1}
	f.downtown = &models.LocationGroup{ID: uuid.New(), OrganizationID: f.orgID, Name: "Downtown", ParentID: &f.metro.ID, Level: 2}

	loc := func(name string, org uuid.UUID, group *models.LocationGroup, active bool) *models.Location {
		l := &models.Location{ID: uuid.New(), OrganizationID: org, Name: name, IsActive: active}
		if group != nil {
			l.GroupID = &group.ID
		}
		return l
	}
	f.loc1 = loc("one", f.orgID, f.region, true)
	f.loc2 = loc("two", f.orgID, f.metro, true)
	f.loc3 = loc("three", f.orgID, f.downtown, true)
	f.loc4 = loc("four", f.orgID, f.downtown, false)
	f.loc5 = loc("five", f.orgID, nil, true)
	f.foreign = loc("foreign", otherOrg, nil, true)

	f.admin = &models.User{ID: uuid.New(), OrganizationID: &f.orgID, Role: models.RoleAdmin}
	f.manager = &models.User{ID: uuid.New(), OrganizationID: &f.orgID, Role: models.RoleManager}

	f.users = newFakeUserRepo(f.admin, f.manager)
	f.locations = newFakeLocationRepo(f.loc1, f.loc2, f.loc3, f.loc4, f.loc5, f.foreign)
	f.groups = newFakeGroupRepo(f.locations, f.region, f.metro, f.downtown)
	f.access = &fakeAccessRepo{}
	f.svc = NewLocationAccessService(f.users, f.locations, f.groups, f.access, zap.NewNop())
	return f
}

func sortIDs(ids ...uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	slices.SortFunc(out, compareUUID)
	return out
}

func TestResolveLocationIDs_AllGrantSeesEveryActiveLocation(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	_, err := f.svc.AssignAllLocations(ctx, f.orgID, f.manager.ID)
	require.NoError(t, err)

	ids, err := f.svc.ResolveLocationIDs(ctx, f.orgID, f.manager.ID)
	require.NoError(t, err)
	assert.Equal(t, sortIDs(f.loc1.ID, f.loc2.ID, f.loc3.ID, f.loc5.ID), ids)
}

func TestResolveLocationIDs_AdminsSeeEverythingWithoutGrants(t *testing.T) {
	f := newAccessFixture(t)

	ids, err := f.svc.ResolveLocationIDs(context.Background(), f.orgID, f.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, sortIDs(f.loc1.ID, f.loc2.ID, f.loc3.ID, f.loc5.ID), ids)
}

func TestResolveLocationIDs_GroupGrantIncludesDescendants(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	_, err := f.svc.GrantGroup(ctx, f.orgID, f.manager.ID, f.metro.ID)
	require.NoError(t, err)

	ids, err := f.svc.ResolveLocationIDs(ctx, f.orgID, f.manager.ID)
	require.NoError(t, err)
	// loc1 sits in the parent group and loc4 is inactive.
	assert.Equal(t, sortIDs(f.loc2.ID, f.loc3.ID), ids)
}

func TestResolveLocationIDs_MixedGrantsAreDeduplicated(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	_, err := f.svc.GrantGroup(ctx, f.orgID, f.manager.ID, f.downtown.ID)
	require.NoError(t, err)
	_, err = f.svc.GrantLocation(ctx, f.orgID, f.manager.ID, f.loc3.ID)
	require.NoError(t, err)
	_, err = f.svc.GrantLocation(ctx, f.orgID, f.manager.ID, f.loc5.ID)
	require.NoError(t, err)

	ids, err := f.svc.ResolveLocationIDs(ctx, f.orgID, f.manager.ID)
	require.NoError(t, err)
	assert.Equal(t, sortIDs(f.loc3.ID, f.loc5.ID), ids)
}

func TestResolveLocationIDs_InactiveLocationGrantIgnored(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	_, err := f.svc.GrantLocation(ctx, f.orgID, f.manager.ID, f.loc4.ID)
	require.NoError(t, err)

	ids, err := f.svc.ResolveLocationIDs(ctx, f.orgID, f.manager.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestResolveLocationIDs_Idempotent(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	_, err := f.svc.GrantGroup(ctx, f.orgID, f.manager.ID, f.region.ID)
	require.NoError(t, err)

	first, err := f.svc.ResolveLocationIDs(ctx, f.orgID, f.manager.ID)
	require.NoError(t, err)
	second, err := f.svc.ResolveLocationIDs(ctx, f.orgID, f.manager.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, sortIDs(f.loc1.ID, f.loc2.ID, f.loc3.ID), first)
}

func TestAssignAllLocations_RemovesPreviousGrants(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	_, err := f.svc.GrantGroup(ctx, f.orgID, f.manager.ID, f.metro.ID)
	require.NoError(t, err)
	_, err = f.svc.GrantLocation(ctx, f.orgID, f.manager.ID, f.loc5.ID)
	require.NoError(t, err)

	all, err := f.svc.AssignAllLocations(ctx, f.orgID, f.manager.ID)
	require.NoError(t, err)

	grants, err := f.svc.ListGrants(ctx, f.orgID, f.manager.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, models.AccessAll, grants[0].AccessType)
	assert.Equal(t, all.ID, grants[0].ID)
}

func TestResolveLocationIDs_TerminatesOnCyclicGroups(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	// Corrupt the hierarchy: region becomes a child of downtown.
	f.region.ParentID = &f.downtown.ID

	_, err := f.svc.GrantGroup(ctx, f.orgID, f.manager.ID, f.metro.ID)
	require.NoError(t, err)

	ids, err := f.svc.ResolveLocationIDs(ctx, f.orgID, f.manager.ID)
	require.NoError(t, err)
	assert.Equal(t, sortIDs(f.loc1.ID, f.loc2.ID, f.loc3.ID), ids)
	assert.Equal(t, 3, f.groups.childrenCalls, "each group expanded exactly once")
}

func TestResolveLocationIDs_UserOutsideOrganization(t *testing.T) {
	f := newAccessFixture(t)

	_, err := f.svc.ResolveLocationIDs(context.Background(), uuid.New(), f.manager.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGrantLocation_ForeignLocationRejected(t *testing.T) {
	f := newAccessFixture(t)

	_, err := f.svc.GrantLocation(context.Background(), f.orgID, f.manager.ID, f.foreign.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, f.access.grants)
}

func TestCanAccessLocation(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	_, err := f.svc.GrantLocation(ctx, f.orgID, f.manager.ID, f.loc2.ID)
	require.NoError(t, err)

	ok, err := f.svc.CanAccessLocation(ctx, f.orgID, f.manager.ID, f.loc2.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.CanAccessLocation(ctx, f.orgID, f.manager.ID, f.loc1.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevoke(t *testing.T) {
	f := newAccessFixture(t)
	ctx := context.Background()

	grant, err := f.svc.GrantLocation(ctx, f.orgID, f.manager.ID, f.loc2.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Revoke(ctx, f.orgID, f.manager.ID, grant.ID))

	ids, err := f.svc.ResolveLocationIDs(ctx, f.orgID, f.manager.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.ErrorIs(t, f.svc.Revoke(ctx, f.orgID, f.manager.ID, grant.ID), apperrors.ErrNotFound)
}
