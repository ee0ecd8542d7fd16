package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation statuses.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationExpired  = "expired"
	InvitationRevoked  = "revoked"
)

// TeamInvitation invites an email address into the organization with a role and
// optional location grants that are applied on acceptance.
type TeamInvitation struct {
	ID             uuid.UUID   `json:"id"`
	OrganizationID uuid.UUID   `json:"organization_id"`
	Email          string      `json:"email"`
	Role           string      `json:"role"`
	Token          string      `json:"-"`
	Status         string      `json:"status"`
	AllLocations   bool        `json:"all_locations"`
	LocationIDs    []uuid.UUID `json:"location_ids"`
	GroupIDs       []uuid.UUID `json:"group_ids"`
	InvitedBy      *uuid.UUID  `json:"invited_by,omitempty"`
	AcceptedBy     *uuid.UUID  `json:"accepted_by,omitempty"`
	ExpiresAt      time.Time   `json:"expires_at"`
	AcceptedAt     *time.Time  `json:"accepted_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// IsExpired reports whether the invitation can no longer be accepted because of its age.
func (i *TeamInvitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
