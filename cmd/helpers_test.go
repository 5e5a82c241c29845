package cmd

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
)

// useConfigPath points the --config-path flag at dir for the test.
func useConfigPath(t *testing.T, dir string) {
	t.Helper()
	previous := configPath
	configPath = dir
	t.Cleanup(func() { configPath = previous })
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newBackend serves an MCP server with the given tools over streamable HTTP.
func newBackend(t *testing.T, tools ...string) string {
	t.Helper()
	s := server.NewMCPServer("backend", "1.0.0", server.WithToolCapabilities(true))
	for _, name := range tools {
		s.AddTool(mcp.NewTool(name, mcp.WithDescription("test tool")),
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("ok"), nil
			})
	}
	ts := httptest.NewServer(server.NewStreamableHTTPServer(s))
	t.Cleanup(ts.Close)
	return ts.URL + "/mcp"
}
