package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipal_Roles(t *testing.T) {
	assert.True(t, (&Principal{Role: RoleOwner}).IsAdmin())
	assert.True(t, (&Principal{Role: RoleAdmin}).IsAdmin())
	assert.False(t, (&Principal{Role: RoleManager}).IsAdmin())

	assert.True(t, (&Principal{Role: RoleAdmin}).HasRole(RoleManager))
	assert.False(t, (&Principal{Role: RoleMember}).HasRole(RoleManager))
	assert.False(t, (&Principal{Role: "unknown"}).HasRole(RoleMember))
}

func TestRequirePrincipal(t *testing.T) {
	_, err := RequirePrincipal(context.Background())
	assert.ErrorIs(t, err, ErrNoPrincipal)

	ctx := SetPrincipal(context.Background(), &Principal{Email: "a@b.c"})
	p, err := RequirePrincipal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", p.Email)
}
