// Package llm wraps hosted chat-completion providers behind a single interface.
package llm

import (
	"context"
)

// LLMClient generates one completion per call. Implementations do not retry; callers wrap
// them with Guard when they want retries on transient failures.
type LLMClient interface {
	// GenerateResponse sends a system message and a user prompt and returns the reply text.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetProvider returns "openai" or "anthropic".
	GetProvider() string
}

// GenerateResponseResult is the reply text plus token usage.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
