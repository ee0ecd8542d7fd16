package prompts

import "time"

// ReplyData feeds the draft_reply prompt.
type ReplyData struct {
	BusinessName       string
	Platform           string
	ReviewerName       string
	Rating             int
	Text               string
	PostedAt           time.Time
	Tone               string
	Signature          string
	CustomInstructions string
	MaxWords           int
}

// ReviewLine is one review in a digest.
type ReviewLine struct {
	Rating   int
	Platform string
	Text     string
	PostedAt time.Time
}

// DigestData feeds the insights and summary prompts.
type DigestData struct {
	BusinessName  string
	Count         int
	AverageRating float64
	Reviews       []ReviewLine
}

// CompetitorLine is one competitor's public rating.
type CompetitorLine struct {
	Name        string
	Platform    string
	Rating      float64
	ReviewCount int
	CheckedAt   time.Time
}

// ComparisonData feeds the competitor_comparison prompt.
type ComparisonData struct {
	BusinessName  string
	Count         int
	AverageRating float64
	Competitors   []CompetitorLine
}
