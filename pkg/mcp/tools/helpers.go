package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
)

// principal returns the caller resolved by the tenant middleware in front of /mcp.
func principal(ctx context.Context) (*auth.Principal, error) {
	p, ok := auth.GetPrincipal(ctx)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}
	return p, nil
}

// uuidArg reads a required UUID argument. The error result is nil on success.
func uuidArg(req mcp.CallToolRequest, name string) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString(name)
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", fmt.Sprintf("%s is required", name))
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", fmt.Sprintf("%s must be a UUID", name))
	}
	return id, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
