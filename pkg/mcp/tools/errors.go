package tools

import (
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/reviewpilot/reviewpilot-engine/pkg/apperrors"
	"github.com/reviewpilot/reviewpilot-engine/pkg/llm"
)

// ErrorResponse represents a structured error in tool results.
// Returned as a successful tool result so the agent sees the reason and can adjust its call.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the caller can act on (bad parameters, unknown ids). System failures
// should still return Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	jsonBytes, _ := json.Marshal(ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
	})
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// serviceErrorResult maps domain errors to tool error results. It returns nil for errors
// that are not the caller's to fix.
func serviceErrorResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		// Hidden and missing resources look the same.
		return NewErrorResult("not_found", "resource not found")
	case errors.Is(err, apperrors.ErrForbidden):
		return NewErrorResult("forbidden", "not permitted for your role")
	case errors.Is(err, apperrors.ErrInvalidInput):
		return NewErrorResult("invalid_input", err.Error())
	case errors.Is(err, llm.ErrNotConfigured):
		return NewErrorResult("ai_unavailable", "AI features are not configured")
	}
	return nil
}
