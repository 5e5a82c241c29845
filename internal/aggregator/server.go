package aggregator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"switchboard/internal/config"
	"switchboard/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerConfig configures the MCP endpoint that exposes an Aggregator.
type ServerConfig struct {
	Host      string
	Port      int
	Transport string // streamable-http, sse or stdio
	// ManagementTools adds the statistics and capability inspection tools.
	ManagementTools bool
	Version         string
}

// ServerConfigFromConfig maps the aggregator section of the configuration.
func ServerConfigFromConfig(cfg config.AggregatorConfig, version string) ServerConfig {
	return ServerConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		Transport:       cfg.Transport,
		ManagementTools: cfg.ManagementTools,
		Version:         version,
	}
}

// AggregatorServer exposes an Aggregator as a single MCP server. Its tool,
// prompt and resource set follows the aggregator's registry.
type AggregatorServer struct {
	config ServerConfig
	agg    *Aggregator
	server *server.MCPServer

	// Transport-specific servers
	sseServer            *server.SSEServer
	streamableHTTPServer *server.StreamableHTTPServer
	stdioServer          *server.StdioServer

	ctx        context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex
	syncMu     sync.Mutex

	toolManager     *activeItemManager
	promptManager   *activeItemManager
	resourceManager *activeItemManager
}

// NewAggregatorServer creates the exposure server for agg. The MCP server is
// created immediately so it can be used in-process before Start.
func NewAggregatorServer(cfg ServerConfig, agg *Aggregator) *AggregatorServer {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	a := &AggregatorServer{
		config:          cfg,
		agg:             agg,
		toolManager:     newActiveItemManager(itemTypeTool),
		promptManager:   newActiveItemManager(itemTypePrompt),
		resourceManager: newActiveItemManager(itemTypeResource),
	}
	a.server = server.NewMCPServer(
		"switchboard",
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
	)
	if cfg.ManagementTools {
		a.server.AddTools(managementTools(agg)...)
	}
	agg.OnChange(a.UpdateCapabilities)
	a.UpdateCapabilities()
	return a
}

// MCPServer returns the underlying MCP server.
func (a *AggregatorServer) MCPServer() *server.MCPServer {
	return a.server
}

// Start serves the configured transport until Stop or ctx cancellation.
func (a *AggregatorServer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancelFunc != nil {
		return fmt.Errorf("aggregator server already started")
	}
	a.ctx, a.cancelFunc = context.WithCancel(ctx)

	addr := fmt.Sprintf("%s:%d", a.config.Host, a.config.Port)

	switch a.config.Transport {
	case config.MCPTransportSSE:
		logging.Info("Transport", "Serving MCP over SSE on %s", addr)
		a.sseServer = server.NewSSEServer(
			a.server,
			server.WithBaseURL(fmt.Sprintf("http://%s", addr)),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
			server.WithKeepAlive(true),
			server.WithKeepAliveInterval(30*time.Second),
		)
		sseServer := a.sseServer
		go func() {
			if err := sseServer.Start(addr); err != nil && err != http.ErrServerClosed {
				logging.Error("Transport", err, "SSE server error")
			}
		}()

	case config.MCPTransportStdio:
		logging.Info("Transport", "Serving MCP over stdio")
		a.stdioServer = server.NewStdioServer(a.server)
		stdioServer, srvCtx := a.stdioServer, a.ctx
		go func() {
			if err := stdioServer.Listen(srvCtx, os.Stdin, os.Stdout); err != nil && srvCtx.Err() == nil {
				logging.Error("Transport", err, "Stdio server error")
			}
		}()

	default:
		logging.Info("Transport", "Serving MCP over streamable-http on %s", addr)
		a.streamableHTTPServer = server.NewStreamableHTTPServer(a.server)
		streamableServer := a.streamableHTTPServer
		go func() {
			if err := streamableServer.Start(addr); err != nil && err != http.ErrServerClosed {
				logging.Error("Transport", err, "Streamable HTTP server error")
			}
		}()
	}

	return nil
}

// Stop shuts the transport down.
func (a *AggregatorServer) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.cancelFunc == nil {
		a.mu.Unlock()
		return fmt.Errorf("aggregator server not started")
	}
	cancelFunc := a.cancelFunc
	sseServer := a.sseServer
	streamableServer := a.streamableHTTPServer
	a.cancelFunc = nil
	a.sseServer = nil
	a.streamableHTTPServer = nil
	a.stdioServer = nil
	a.mu.Unlock()

	logging.Info("Transport", "Stopping MCP endpoint")
	cancelFunc()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if sseServer != nil {
		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("Transport", err, "Error shutting down SSE server")
		}
	}
	if streamableServer != nil {
		if err := streamableServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("Transport", err, "Error shutting down streamable HTTP server")
		}
	}
	return nil
}

// GetEndpoint returns the client-facing endpoint URL.
func (a *AggregatorServer) GetEndpoint() string {
	switch a.config.Transport {
	case config.MCPTransportSSE:
		return fmt.Sprintf("http://%s:%d/sse", a.config.Host, a.config.Port)
	case config.MCPTransportStdio:
		return "stdio"
	default:
		return fmt.Sprintf("http://%s:%d/mcp", a.config.Host, a.config.Port)
	}
}

// UpdateCapabilities synchronizes the advertised items with the aggregator.
// Items that disappeared are deleted; current items are (re)added so changed
// descriptors are picked up.
func (a *AggregatorServer) UpdateCapabilities() {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	// An aggregator that is not initialized advertises nothing.
	tools, _ := a.agg.ListTools()
	prompts, _ := a.agg.ListPrompts()
	resources, _ := a.agg.ListResources()

	if a.config.ManagementTools {
		tools = withoutReserved(tools)
	}

	removeObsoleteItems(a.toolManager, namesOf(tools, func(t mcp.Tool) string { return t.Name }), func(items []string) {
		a.server.DeleteTools(items...)
	})
	removeObsoleteItems(a.promptManager, namesOf(prompts, func(p mcp.Prompt) string { return p.Name }), func(items []string) {
		a.server.DeletePrompts(items...)
	})
	removeObsoleteItems(a.resourceManager, namesOf(resources, func(r mcp.Resource) string { return r.URI }), func(items []string) {
		// mcp-go has no batch removal for resources
		for _, uri := range items {
			a.server.RemoveResource(uri)
		}
	})

	if len(tools) > 0 {
		serverTools := make([]server.ServerTool, 0, len(tools))
		for _, t := range tools {
			a.toolManager.setActive(t.Name, true)
			serverTools = append(serverTools, server.ServerTool{Tool: t, Handler: toolHandlerFactory(a, t.Name)})
		}
		a.server.AddTools(serverTools...)
	}
	if len(prompts) > 0 {
		serverPrompts := make([]server.ServerPrompt, 0, len(prompts))
		for _, p := range prompts {
			a.promptManager.setActive(p.Name, true)
			serverPrompts = append(serverPrompts, server.ServerPrompt{Prompt: p, Handler: promptHandlerFactory(a, p.Name)})
		}
		a.server.AddPrompts(serverPrompts...)
	}
	if len(resources) > 0 {
		serverResources := make([]server.ServerResource, 0, len(resources))
		for _, r := range resources {
			a.resourceManager.setActive(r.URI, true)
			serverResources = append(serverResources, server.ServerResource{Resource: r, Handler: resourceHandlerFactory(a, r.URI)})
		}
		a.server.AddResources(serverResources...)
	}

	logging.Debug("Transport", "Advertising %d tools, %d prompts, %d resources", len(tools), len(prompts), len(resources))
}

func namesOf[T any](items []T, name func(T) string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[name(item)] = struct{}{}
	}
	return out
}
