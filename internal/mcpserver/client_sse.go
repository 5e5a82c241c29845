package mcpserver

import (
	"context"
	"fmt"
	"net/http"

	"switchboard/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
)

// SSEClient implements MCPClient using the Server-Sent Events transport.
type SSEClient struct {
	baseMCPClient
	url        string
	headers    map[string]string
	httpClient *http.Client
}

// NewSSEClient creates an SSE client. httpClient may be nil.
func NewSSEClient(url string, headers map[string]string, httpClient *http.Client) *SSEClient {
	return &SSEClient{
		url:        url,
		headers:    headers,
		httpClient: httpClient,
	}
}

// Initialize opens the event stream and performs the handshake.
func (c *SSEClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("SSEClient", "Creating SSE client for URL: %s", c.url)

	var opts []transport.ClientOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHeaders(c.headers))
	}
	if c.httpClient != nil {
		opts = append(opts, transport.WithHTTPClient(c.httpClient))
	}

	mcpClient, err := client.NewSSEMCPClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to create SSE client: %w", err)
	}

	// The event stream outlives the handshake; only the handshake is bound to ctx.
	if err := mcpClient.Start(context.WithoutCancel(ctx)); err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to start SSE transport: %w", err)
	}

	return c.handshake(ctx, "SSEClient", mcpClient)
}
