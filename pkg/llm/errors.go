package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType indicates which part of the provider setup caused a failure.
type ErrorType string

const (
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeQuota    ErrorType = "quota"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// ErrNotConfigured is returned when no provider API key is set.
var ErrNotConfigured = errors.New("ai provider not configured")

// Error represents a classified provider error.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

func withModel(e *Error, model string) *Error {
	if e != nil && e.Model == "" {
		e.Model = model
	}
	return e
}

type classifyRule struct {
	match     func(raw, lower string) bool
	errType   ErrorType
	message   string
	retryable bool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Rules are checked in order; the first match wins.
var classifyRules = []classifyRule{
	{func(raw, lower string) bool {
		return strings.Contains(raw, "401") || containsAny(lower, "unauthorized", "invalid api key", "invalid x-api-key", "authentication_error")
	}, ErrorTypeAuth, "authentication failed", false},
	{func(raw, lower string) bool {
		return containsAny(lower, "insufficient_quota", "credit balance is too low")
	}, ErrorTypeQuota, "provider quota exhausted", false},
	{func(raw, lower string) bool {
		return strings.Contains(lower, "model") && containsAny(lower, "not found", "does not exist", "not_found_error")
	}, ErrorTypeModel, "model not found", false},
	{func(raw, lower string) bool { return strings.Contains(raw, "404") }, ErrorTypeEndpoint, "endpoint not found", false},
	{func(raw, lower string) bool {
		return containsAny(lower, "context canceled")
	}, ErrorTypeEndpoint, "request cancelled", false},
	{func(raw, lower string) bool {
		return containsAny(lower, "connection refused", "no such host", "connection reset")
	}, ErrorTypeEndpoint, "connection failed", true},
	{func(raw, lower string) bool {
		return containsAny(lower, "timeout", "deadline exceeded")
	}, ErrorTypeEndpoint, "request timeout", true},
	{func(raw, lower string) bool {
		return strings.Contains(raw, "429") || containsAny(lower, "rate limit", "rate_limit")
	}, ErrorTypeEndpoint, "rate limited", true},
	{func(raw, lower string) bool {
		return strings.Contains(raw, "529") || strings.Contains(lower, "overloaded")
	}, ErrorTypeEndpoint, "provider overloaded", true},
	{func(raw, lower string) bool {
		return containsAny(raw, "500", "502", "503", "504")
	}, ErrorTypeEndpoint, "server error", true},
}

// ClassifyError categorizes a provider error. Errors that are already *Error pass through.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	raw := err.Error()
	lower := strings.ToLower(raw)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529} {
		if strings.Contains(raw, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	for _, rule := range classifyRules {
		if rule.match(raw, lower) {
			e := NewError(rule.errType, rule.message, rule.retryable, err)
			e.StatusCode = statusCode
			return e
		}
	}

	e := NewError(ErrorTypeUnknown, "llm error", false, err)
	e.StatusCode = statusCode
	return e
}

// IsRetryable returns true if err is a retryable *Error.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}
