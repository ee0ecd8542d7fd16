package models

import (
	"time"

	"github.com/google/uuid"
)

// Business is a brand owned by an organization. Reviews, platform connections,
// competitors and campaigns hang off a business.
type Business struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Name           string     `json:"name"`
	Category       string     `json:"category,omitempty"`
	Website        string     `json:"website,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Address        string     `json:"address,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"-"`
}

// Location is a physical site. It belongs to the organization and optionally
// to a business and a location group.
type Location struct {
	ID                 uuid.UUID  `json:"id"`
	OrganizationID     uuid.UUID  `json:"organization_id"`
	BusinessID         *uuid.UUID `json:"business_id,omitempty"`
	GroupID            *uuid.UUID `json:"group_id,omitempty"`
	ManagerID          *uuid.UUID `json:"manager_id,omitempty"`
	Name               string     `json:"name"`
	Address            string     `json:"address,omitempty"`
	City               string     `json:"city,omitempty"`
	State              string     `json:"state,omitempty"`
	PostalCode         string     `json:"postal_code,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	GoogleLocationName string     `json:"google_location_name,omitempty"` // accounts/{a}/locations/{l}
	IsActive           bool       `json:"is_active"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DeletedAt          *time.Time `json:"-"`
}

// LocationGroup is a node in the organization's location hierarchy.
// Level is 0 for roots and parent.Level+1 otherwise.
type LocationGroup struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	ParentID       *uuid.UUID `json:"parent_id,omitempty"`
	Name           string     `json:"name"`
	Level          int        `json:"level"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LocationGroupNode is a group with its children, used for tree listings.
type LocationGroupNode struct {
	*LocationGroup
	Children []*LocationGroupNode `json:"children"`
}

// Access types for location grants.
const (
	AccessAll      = "all"
	AccessLocation = "location"
	AccessGroup    = "group"
)

// LocationAccess is one grant of locations to a user.
type LocationAccess struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	UserID         uuid.UUID  `json:"user_id"`
	AccessType     string     `json:"access_type"`
	LocationID     *uuid.UUID `json:"location_id,omitempty"`
	GroupID        *uuid.UUID `json:"group_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
