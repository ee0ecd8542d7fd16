package models

import (
	"time"

	"github.com/google/uuid"
)

// CompetitorWebsite is the competitor source scraped from a public web page.
const CompetitorWebsite = "website"

// Competitor is another business whose public rating is tracked.
type Competitor struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	BusinessID     uuid.UUID  `json:"business_id"`
	Name           string     `json:"name"`
	Platform       string     `json:"platform"` // google, yelp or website
	ExternalID     string     `json:"external_id"`
	WebsiteURL     string     `json:"website_url,omitempty"`
	Rating         *float64   `json:"rating,omitempty"`
	ReviewCount    int        `json:"review_count"`
	LastCheckedAt  *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"-"`
}

// CompetitorSnapshot records a competitor's rating at one point in time.
type CompetitorSnapshot struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	CompetitorID   uuid.UUID `json:"competitor_id"`
	Rating         *float64  `json:"rating,omitempty"`
	ReviewCount    int       `json:"review_count"`
	CapturedAt     time.Time `json:"captured_at"`
}
