package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role constants for organization members, highest privilege first.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleOwner, RoleAdmin, RoleManager, RoleMember}

// IsValidRole checks if the given role is valid.
func IsValidRole(role string) bool {
	return slices.Contains(ValidRoles, role)
}

// User is a person signed in through the identity provider.
// OrganizationID is nil until the user is provisioned or accepts an invitation.
type User struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	Subject        string     `json:"-"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	PictureURL     string     `json:"picture_url,omitempty"`
	Role           string     `json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsAdmin reports whether the user sees every location regardless of grants.
func (u *User) IsAdmin() bool {
	return u.Role == RoleOwner || u.Role == RoleAdmin
}
