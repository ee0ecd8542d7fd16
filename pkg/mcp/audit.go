package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/reviewpilot/reviewpilot-engine/pkg/auth"
)

const maxLoggedParamLen = 100

// AuditLogger writes one structured log line per MCP tool call.
type AuditLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewAuditLogger creates an AuditLogger that records MCP tool calls.
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.Named("mcp-audit")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *AuditLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *AuditLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *AuditLogger) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	fields := a.fields(ctx, id, req)
	if result != nil && result.IsError {
		a.logger.Info("MCP tool call rejected", append(fields, zap.String("result", resultPreview(result)))...)
		return
	}
	a.logger.Info("MCP tool call", fields...)
}

func (a *AuditLogger) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}
	a.logger.Warn("MCP tool call failed", append(a.fields(ctx, id, req), zap.Error(err))...)
}

func (a *AuditLogger) fields(ctx context.Context, id any, req *mcplib.CallToolRequest) []zap.Field {
	start := time.Now()
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		start = v.(time.Time)
	}

	fields := []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Duration("duration", time.Since(start)),
		zap.Any("params", sanitizeParams(req.GetArguments())),
	}
	if p, ok := auth.GetPrincipal(ctx); ok {
		fields = append(fields,
			zap.String("organization_id", p.OrganizationID.String()),
			zap.String("user_id", p.UserID.String()),
			zap.String("role", p.Role))
	}
	return fields
}

// sanitizeParams truncates long values; free text arguments can hold customer data.
func sanitizeParams(args map[string]any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		if len(s) > maxLoggedParamLen {
			s = s[:maxLoggedParamLen] + "...[truncated]"
		}
		out[k] = s
	}
	return out
}

func resultPreview(result *mcplib.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			text := tc.Text
			if len(text) > 200 {
				text = text[:200] + "...[truncated]"
			}
			return text
		}
	}
	return fmt.Sprintf("%d content items", len(result.Content))
}
