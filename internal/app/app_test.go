package app

import (
	"context"
	"fmt"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"
)

// newBackend serves an MCP server offering one tool over streamable HTTP and
// returns its endpoint.
func newBackend(t *testing.T, toolName string) string {
	t.Helper()
	s := server.NewMCPServer("backend-"+toolName, "1.0.0", server.WithToolCapabilities(true))
	s.AddTool(mcp.NewTool(toolName, mcp.WithDescription("returns ok")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok from " + toolName), nil
		})
	ts := httptest.NewServer(server.NewStreamableHTTPServer(s))
	t.Cleanup(ts.Close)
	return ts.URL + "/mcp"
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// writeConfig creates a config directory whose config.yaml declares one
// backend called "echo".
func writeConfig(t *testing.T, port int, backendURL, extra string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), fmt.Sprintf(`aggregator:
  host: 127.0.0.1
  port: %d
%s
servers:
  - name: echo
    type: streamable-http
    url: %s
`, port, extra, backendURL))
	return dir
}
