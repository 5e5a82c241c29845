package mcpserver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"switchboard/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
)

// DefaultStdioInitTimeout bounds process start plus the MCP handshake when
// the caller's context carries no deadline.
const DefaultStdioInitTimeout = 10 * time.Second

// StdioClient implements MCPClient over a local subprocess speaking MCP on
// stdin/stdout.
type StdioClient struct {
	baseMCPClient
	name    string
	command string
	args    []string
	env     map[string]string
}

// NewStdioClient creates a stdio client. name is only used in log output.
func NewStdioClient(name, command string, args []string, env map[string]string) *StdioClient {
	return &StdioClient{
		name:    name,
		command: command,
		args:    args,
		env:     env,
	}
}

// Initialize starts the subprocess and performs the handshake.
func (c *StdioClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("StdioClient", "Starting %s: %s %v", c.name, c.command, c.args)

	mcpClient, err := client.NewStdioMCPClient(c.command, envSlice(c.env), c.args...)
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", c.command, err)
	}

	if stderr, ok := client.GetStderr(mcpClient); ok {
		go c.forwardStderr(stderr)
	}

	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, DefaultStdioInitTimeout)
		defer cancel()
	}

	if err := c.handshake(initCtx, "StdioClient", mcpClient); err != nil {
		logging.Error("StdioClient", err, "Handshake with %s failed", c.name)
		return err
	}
	return nil
}

// forwardStderr copies the subprocess' stderr into the debug log until the
// process exits.
func (c *StdioClient) forwardStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logging.Debug("StdioClient", "[%s] %s", c.name, scanner.Text())
	}
}

// envSlice renders env as sorted KEY=VALUE pairs.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}
