package models

import (
	"time"

	"github.com/google/uuid"
)

// Connection statuses.
const (
	ConnectionActive       = "active"
	ConnectionError        = "error"
	ConnectionDisconnected = "disconnected"
)

// PlatformConnection links a business to its account on a review platform.
// AccessToken and RefreshToken hold plaintext in memory; repositories seal them at rest.
type PlatformConnection struct {
	ID                  uuid.UUID  `json:"id"`
	OrganizationID      uuid.UUID  `json:"organization_id"`
	BusinessID          uuid.UUID  `json:"business_id"`
	Platform            string     `json:"platform"`
	ExternalAccountID   string     `json:"external_account_id"`
	ExternalAccountName string     `json:"external_account_name,omitempty"`
	AccessToken         string     `json:"-"`
	RefreshToken        string     `json:"-"`
	TokenExpiresAt      *time.Time `json:"token_expires_at,omitempty"`
	Scopes              string     `json:"scopes,omitempty"`
	Status              string     `json:"status"`
	LastError           string     `json:"last_error,omitempty"`
	ConnectedBy         *uuid.UUID `json:"connected_by,omitempty"`
	LastSyncedAt        *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NeedsRefresh reports whether the access token expires within window of now.
func (c *PlatformConnection) NeedsRefresh(now time.Time, window time.Duration) bool {
	if c.TokenExpiresAt == nil {
		return false
	}
	return c.TokenExpiresAt.Before(now.Add(window))
}
