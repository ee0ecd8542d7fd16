package llm

import (
	"context"
	"sync"
)

// MockLLMClient is a configurable mock for testing LLM functionality.
type MockLLMClient struct {
	// GenerateResponseFunc is called when GenerateResponse is invoked.
	// If nil, returns Response (or an empty result).
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	// Response is returned when GenerateResponseFunc is nil.
	Response string

	Model string

	mu      sync.Mutex
	Prompts []string
	Systems []string
}

// NewMockLLMClient creates a mock that replies with response.
func NewMockLLMClient(response string) *MockLLMClient {
	return &MockLLMClient{Response: response, Model: "mock-model"}
}

func (m *MockLLMClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.Systems = append(m.Systems, systemMessage)
	m.mu.Unlock()

	if m.GenerateResponseFunc != nil {
		return m.GenerateResponseFunc(ctx, prompt, systemMessage, temperature)
	}
	return &GenerateResponseResult{Content: m.Response}, nil
}

// Calls returns how many times GenerateResponse ran.
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

func (m *MockLLMClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

func (m *MockLLMClient) GetProvider() string { return "mock" }

var _ LLMClient = (*MockLLMClient)(nil)
