package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewpilot/reviewpilot-engine/pkg/retry"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
		status    int
	}{
		{"openai auth", errors.New("error, status code: 401, status: 401 Unauthorized, message: Incorrect API key"), ErrorTypeAuth, false, 401},
		{"anthropic auth", errors.New("anthropic api error type: authentication_error, message: invalid x-api-key"), ErrorTypeAuth, false, 0},
		{"quota", errors.New("status code: 429, message: insufficient_quota"), ErrorTypeQuota, false, 429},
		{"rate limited", errors.New("status code: 429, message: Rate limit reached"), ErrorTypeEndpoint, true, 429},
		{"overloaded", errors.New("anthropic api error type: overloaded_error"), ErrorTypeEndpoint, true, 0},
		{"model missing", errors.New("The model `gpt-9` does not exist"), ErrorTypeModel, false, 0},
		{"server error", errors.New("status code: 503"), ErrorTypeEndpoint, true, 503},
		{"timeout", errors.New("context deadline exceeded (Client.Timeout exceeded)"), ErrorTypeEndpoint, true, 0},
		{"cancelled", fmt.Errorf("post: %w", context.Canceled), ErrorTypeEndpoint, false, 0},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, tt.status, got.StatusCode)
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.Nil(t, ClassifyError(nil))
}

func TestClassifyError_PassesThroughExisting(t *testing.T) {
	orig := NewError(ErrorTypeModel, "nope", false, nil)
	assert.Same(t, orig, ClassifyError(fmt.Errorf("wrapped: %w", orig)))
}

func TestError_Message(t *testing.T) {
	e := &Error{Type: ErrorTypeEndpoint, Message: "server error", StatusCode: 503, Model: "gpt-4o-mini", Cause: errors.New("boom")}
	assert.Equal(t, "endpoint HTTP 503 model=gpt-4o-mini server error: boom", e.Error())
}

func TestError_ImplementsRetryableError(t *testing.T) {
	var re retry.RetryableError = NewError(ErrorTypeEndpoint, "x", true, nil)
	assert.True(t, retry.IsRetryable(re))
	assert.False(t, retry.IsRetryable(NewError(ErrorTypeAuth, "x", false, nil)))
}
