package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Review platforms.
const (
	PlatformGoogle   = "google"
	PlatformYelp     = "yelp"
	PlatformFacebook = "facebook"
)

// ValidPlatforms contains all platforms reviews can come from.
var ValidPlatforms = []string{PlatformGoogle, PlatformYelp, PlatformFacebook}

// IsValidPlatform checks if the given platform is supported.
func IsValidPlatform(platform string) bool {
	return slices.Contains(ValidPlatforms, platform)
}

// Sentiment values.
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// SentimentFromRating derives sentiment from a 1-5 star rating:
// 4-5 positive, 3 neutral, 1-2 negative.
func SentimentFromRating(rating int) string {
	switch {
	case rating >= 4:
		return SentimentPositive
	case rating == 3:
		return SentimentNeutral
	default:
		return SentimentNegative
	}
}

// Review is a customer review ingested from a platform.
type Review struct {
	ID                uuid.UUID  `json:"id"`
	OrganizationID    uuid.UUID  `json:"organization_id"`
	BusinessID        uuid.UUID  `json:"business_id"`
	LocationID        *uuid.UUID `json:"location_id,omitempty"`
	Platform          string     `json:"platform"`
	ExternalID        string     `json:"external_id"`
	ReviewerName      string     `json:"reviewer_name"`
	ReviewerAvatarURL string     `json:"reviewer_avatar_url,omitempty"`
	Rating            int        `json:"rating"`
	Text              string     `json:"text"`
	ReviewURL         string     `json:"review_url,omitempty"`
	PostedAt          time.Time  `json:"posted_at"`
	Sentiment         string     `json:"sentiment"`
	ResponseText      *string    `json:"response_text,omitempty"`
	ResponseDate      *time.Time `json:"response_date,omitempty"`
	RespondedByAI     bool       `json:"responded_by_ai"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasResponse reports whether the business already replied.
func (r *Review) HasResponse() bool {
	return r.ResponseText != nil && *r.ResponseText != ""
}

// ReviewFilter narrows review listings. Zero values mean "no constraint".
// LocationIDs nil means unrestricted; an empty non-nil slice matches nothing.
type ReviewFilter struct {
	BusinessID  uuid.UUID
	LocationIDs []uuid.UUID
	Platform    string
	MinRating   int
	MaxRating   int
	Sentiment   string
	Responded   *bool
	Search      string
	Limit       int
	Offset      int
}

// ReviewStats is the analytics rollup for a business.
type ReviewStats struct {
	TotalReviews       int                       `json:"total_reviews"`
	AverageRating      float64                   `json:"average_rating"`
	RatingDistribution map[int]int               `json:"rating_distribution"`
	Sentiment          map[string]int            `json:"sentiment"`
	ResponseRate       float64                   `json:"response_rate"`
	ByPlatform         map[string]*PlatformStats `json:"by_platform"`
	ByLocation         []*LocationStats          `json:"by_location"`
	MonthlyTrend       []*MonthlyStats           `json:"monthly_trend"`
}

// PlatformStats is the rollup for one platform.
type PlatformStats struct {
	Count         int     `json:"count"`
	AverageRating float64 `json:"average_rating"`
}

// LocationStats is the rollup for one location.
type LocationStats struct {
	LocationID    uuid.UUID `json:"location_id"`
	Name          string    `json:"name"`
	Count         int       `json:"count"`
	AverageRating float64   `json:"average_rating"`
}

// MonthlyStats is one month of the trend, Month formatted as YYYY-MM.
type MonthlyStats struct {
	Month         string  `json:"month"`
	Count         int     `json:"count"`
	AverageRating float64 `json:"average_rating"`
}
