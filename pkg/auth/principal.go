package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Role names, ordered from most to least privileged.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

var roleRank = map[string]int{
	RoleOwner:   4,
	RoleAdmin:   3,
	RoleManager: 2,
	RoleMember:  1,
}

// ErrNoPrincipal is returned when a request reaches tenant code without a resolved user.
var ErrNoPrincipal = errors.New("no principal in context")

// Principal is the provisioned user behind a request.
type Principal struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           string
	Subject        string
	Email          string
}

// IsAdmin reports whether the principal sees every location in the organization.
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleOwner || p.Role == RoleAdmin
}

// HasRole reports whether the principal's role is at least min.
func (p *Principal) HasRole(min string) bool {
	return roleRank[p.Role] >= roleRank[min]
}

// SetPrincipal stores the principal in context.
func SetPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipal retrieves the principal from context.
func GetPrincipal(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*Principal)
	return p, ok && p != nil
}

// RequirePrincipal returns the principal or ErrNoPrincipal.
func RequirePrincipal(ctx context.Context) (*Principal, error) {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return nil, ErrNoPrincipal
	}
	return p, nil
}
