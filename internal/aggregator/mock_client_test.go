package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"switchboard/internal/config"
	"switchboard/internal/mcpserver"

	"github.com/mark3labs/mcp-go/mcp"
)

// mockMCPClient implements mcpserver.MCPClient for testing
type mockMCPClient struct {
	mu sync.Mutex

	tools     []mcp.Tool
	resources []mcp.Resource
	prompts   []mcp.Prompt

	initErr   error
	initDelay time.Duration
	listErr   error
	callErr   error
	pingErr   error
	// blockLists makes every List call wait for its context to end.
	blockLists bool

	initialized bool
	closed      bool
	calls       []string
}

// clone copies the behaviour of m into a fresh, unconnected client.
func (m *mockMCPClient) clone() *mockMCPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &mockMCPClient{
		tools:      m.tools,
		resources:  m.resources,
		prompts:    m.prompts,
		initErr:    m.initErr,
		initDelay:  m.initDelay,
		listErr:    m.listErr,
		callErr:    m.callErr,
		pingErr:    m.pingErr,
		blockLists: m.blockLists,
	}
}

func (m *mockMCPClient) Initialize(ctx context.Context) error {
	if m.initDelay > 0 {
		select {
		case <-time.After(m.initDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initErr != nil {
		return m.initErr
	}
	m.initialized = true
	return nil
}

func (m *mockMCPClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("already closed")
	}
	m.closed = true
	return nil
}

func (m *mockMCPClient) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockMCPClient) setPingErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

func (m *mockMCPClient) recordedCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockMCPClient) list(ctx context.Context) error {
	if m.blockLists {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return errors.New("not initialized")
	}
	return m.listErr
}

func (m *mockMCPClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if err := m.list(ctx); err != nil {
		return nil, err
	}
	return m.tools, nil
}

func (m *mockMCPClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	if err := m.list(ctx); err != nil {
		return nil, err
	}
	return m.resources, nil
}

func (m *mockMCPClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	if err := m.list(ctx); err != nil {
		return nil, err
	}
	return m.prompts, nil
}

func (m *mockMCPClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "tool:"+name)
	if m.callErr != nil {
		return nil, m.callErr
	}
	return mcp.NewToolResultText("called " + name), nil
}

func (m *mockMCPClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "resource:"+uri)
	if m.callErr != nil {
		return nil, m.callErr
	}
	return &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{URI: uri, MIMEType: "text/plain", Text: "contents of " + uri},
		},
	}, nil
}

func (m *mockMCPClient) GetPrompt(ctx context.Context, name string, args map[string]interface{}) (*mcp.GetPromptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "prompt:"+name)
	if m.callErr != nil {
		return nil, m.callErr
	}
	return mcp.NewGetPromptResult("prompt "+name, nil), nil
}

func (m *mockMCPClient) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

// mockFactory hands out clones of per-backend templates and remembers every
// client it created.
type mockFactory struct {
	mu        sync.Mutex
	templates map[string]*mockMCPClient
	created   map[string][]*mockMCPClient
	// failNext makes the next n clients of a backend fail their handshake.
	failNext map[string]int
}

func newMockFactory(templates map[string]*mockMCPClient) *mockFactory {
	return &mockFactory{
		templates: templates,
		created:   make(map[string][]*mockMCPClient),
		failNext:  make(map[string]int),
	}
}

func (f *mockFactory) create(cfg config.BackendConfig) (mcpserver.MCPClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tmpl, ok := f.templates[cfg.Name]
	if !ok {
		return nil, errors.New("no template for " + cfg.Name)
	}
	c := tmpl.clone()
	if f.failNext[cfg.Name] > 0 {
		f.failNext[cfg.Name]--
		c.initErr = errors.New("connection refused")
	}
	f.created[cfg.Name] = append(f.created[cfg.Name], c)
	return c, nil
}

func (f *mockFactory) failDials(name string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[name] = n
}

func (f *mockFactory) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created[name])
}

func (f *mockFactory) last(name string) *mockMCPClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	clients := f.created[name]
	if len(clients) == 0 {
		return nil
	}
	return clients[len(clients)-1]
}

// backends returns stdio configurations for names.
func backends(names ...string) []config.BackendConfig {
	out := make([]config.BackendConfig, 0, len(names))
	for _, n := range names {
		out = append(out, config.BackendConfig{Name: n, Type: config.BackendTypeStdio, Command: n + "-server"})
	}
	return out
}

func tool(name, description string) mcp.Tool {
	return mcp.NewTool(name, mcp.WithDescription(description))
}

func toolNames(tools []mcp.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}
