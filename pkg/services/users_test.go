package services

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
	"github.com/reviewpilot/reviewpilot-engine/pkg/models"
)

type userFixture struct {
	*teamFixture
	orgs *fakeOrgRepo
	svc  UserService
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	f := &userFixture{teamFixture: newTeamFixture(t)}
	f.orgs = newFakeOrgRepo(&models.Organization{ID: f.orgID, Name: "Cafe Group", Plan: models.PlanStarter})
	f.svc = NewUserService(f.users, f.orgs, f.team, f.accessFixture.svc, passthroughTenantCtx, zap.NewNop())
	return f
}

func claimsFor(subject, email, name string) *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		Email:            email,
		Name:             name,
	}
}

func TestUserService_ProvisionCreatesUserAndOrganization(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	profile, err := f.svc.ProvisionFromClaims(ctx, claimsFor("auth0|fresh", "Pat@Example.com", "Pat"), "")
	require.NoError(t, err)
	assert.Equal(t, "pat@example.com", profile.User.Email)
	assert.Equal(t, models.RoleOwner, profile.User.Role)
	require.NotNil(t, profile.Organization)
	assert.Equal(t, "Pat's organization", profile.Organization.Name)
	assert.Equal(t, models.PlanFree, profile.Organization.Plan)
	assert.NotNil(t, profile.LocationIDs)

	// second call finds the same user and organization
	again, err := f.svc.ProvisionFromClaims(ctx, claimsFor("auth0|fresh", "pat@example.com", "Pat"), "")
	require.NoError(t, err)
	assert.Equal(t, profile.User.ID, again.User.ID)
	assert.Equal(t, profile.Organization.ID, again.Organization.ID)
	assert.Len(t, f.orgs.orgs, 2)
}

func TestUserService_ProvisionUpdatesProfile(t *testing.T) {
	f := newUserFixture(t)
	f.manager.Subject = "auth0|manager"
	f.manager.Name = "Old Name"

	profile, err := f.svc.ProvisionFromClaims(context.Background(), claimsFor("auth0|manager", "", "New Name"), "")
	require.NoError(t, err)
	assert.Equal(t, "New Name", profile.User.Name)
	assert.Equal(t, f.orgID, profile.Organization.ID)
}

func TestUserService_ProvisionWithInvitation(t *testing.T) {
	f := newUserFixture(t)
	inv := f.invite(t, &models.TeamInvitation{Email: "sam@cafe.example", Role: models.RoleManager, GroupIDs: []uuid.UUID{f.metro.ID}})

	profile, err := f.svc.ProvisionFromClaims(context.Background(), claimsFor("auth0|new", "sam@cafe.example", "Sam"), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, f.orgID, profile.Organization.ID)
	assert.Equal(t, models.RoleManager, profile.User.Role)
	assert.Equal(t, sortIDs(f.loc2.ID, f.loc3.ID), profile.LocationIDs)
	assert.Len(t, f.orgs.orgs, 1)
}

func TestUserService_AcceptInvitation(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	inv := f.invite(t, &models.TeamInvitation{Email: "sam@cafe.example", AllLocations: true})

	profile, err := f.svc.AcceptInvitation(ctx, claimsFor("auth0|new", "sam@cafe.example", "Sam"), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, f.orgID, profile.Organization.ID)
	assert.Equal(t, models.RoleMember, profile.User.Role)

	// members of an organization cannot join another one
	f.owner.Subject = "auth0|owner"
	other := f.invite(t, &models.TeamInvitation{Email: f.owner.Email})
	_, err = f.svc.AcceptInvitation(ctx, claimsFor("auth0|owner", f.owner.Email, f.owner.Name), other.Token)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestUserService_ProvisionRejectsMissingSubject(t *testing.T) {
	f := newUserFixture(t)
	_, err := f.svc.ProvisionFromClaims(context.Background(), claimsFor("", "a@b.example", "A"), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestUserService_ResolvePrincipal(t *testing.T) {
	f := newUserFixture(t)
	f.owner.Subject = "auth0|owner"

	p, err := f.svc.ResolvePrincipal(context.Background(), "auth0|owner")
	require.NoError(t, err)
	assert.Equal(t, f.owner.ID, p.UserID)
	assert.Equal(t, f.orgID, p.OrganizationID)
	assert.True(t, p.IsAdmin())

	// users without an organization are not provisioned yet
	_, err = f.svc.ResolvePrincipal(context.Background(), "auth0|new")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.ResolvePrincipal(context.Background(), "auth0|ghost")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
