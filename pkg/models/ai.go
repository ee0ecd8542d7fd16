package models

import (
	"time"

	"github.com/google/uuid"
)

// Reply tones.
const (
	ToneFriendly     = "friendly"
	ToneProfessional = "professional"
	ToneWarm         = "warm"
	ToneConcise      = "concise"
)

// ValidTones contains the tones the reply prompt understands.
var ValidTones = []string{ToneFriendly, ToneProfessional, ToneWarm, ToneConcise}

// AISettings controls AI replies for one business.
type AISettings struct {
	BusinessID         uuid.UUID `json:"business_id"`
	OrganizationID     uuid.UUID `json:"organization_id"`
	AutoReplyEnabled   bool      `json:"auto_reply_enabled"`
	MinRating          int       `json:"min_rating"`
	Platforms          []string  `json:"platforms"`
	Tone               string    `json:"tone"`
	Signature          string    `json:"signature"`
	CustomInstructions string    `json:"custom_instructions"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultAISettings returns the settings used when a business has none stored.
func DefaultAISettings(organizationID, businessID uuid.UUID) *AISettings {
	return &AISettings{
		BusinessID:       businessID,
		OrganizationID:   organizationID,
		AutoReplyEnabled: false,
		MinRating:        4,
		Platforms:        []string{PlatformGoogle},
		Tone:             ToneFriendly,
	}
}

// AllowsAutoReply reports whether review qualifies for an automatic reply.
func (s *AISettings) AllowsAutoReply(review *Review) bool {
	if !s.AutoReplyEnabled || review.HasResponse() || review.Rating < s.MinRating {
		return false
	}
	for _, p := range s.Platforms {
		if p == review.Platform {
			return true
		}
	}
	return false
}

// Insight priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Insight is one actionable finding produced by the AI from recent reviews.
type Insight struct {
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Category string `json:"category"`
	Priority string `json:"priority"`
}
