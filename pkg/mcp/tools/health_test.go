package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthTool(t *testing.T) {
	tests := []struct {
		name string
		db   Pinger
		want healthResult
	}{
		{"no database", nil, healthResult{Status: "ok", Version: "1.2.3", Database: "unknown"}},
		{"database up", stubPinger{}, healthResult{Status: "ok", Version: "1.2.3", Database: "ok"}},
		{"database down", stubPinger{err: errors.New("refused")}, healthResult{Status: "degraded", Version: "1.2.3", Database: "unreachable"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
			RegisterHealthTool(s, "1.2.3", tt.db)

			resp := callTool(t, s, nil, "health", nil)
			var got healthResult
			require.NoError(t, json.Unmarshal([]byte(resp.text(t)), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}
