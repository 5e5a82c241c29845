package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"switchboard/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// itemType represents the type of MCP item (tool, prompt, or resource)
type itemType string

const (
	itemTypeTool     itemType = "tool"
	itemTypePrompt   itemType = "prompt"
	itemTypeResource itemType = "resource"
)

// Names of the management tools.
const (
	StatisticsToolName         = "switchboard_statistics"
	ServerCapabilitiesToolName = "switchboard_server_capabilities"
)

// activeItemManager tracks which items are currently advertised.
type activeItemManager struct {
	mu       sync.RWMutex
	items    map[string]bool
	itemType itemType
}

func newActiveItemManager(iType itemType) *activeItemManager {
	return &activeItemManager{
		items:    make(map[string]bool),
		itemType: iType,
	}
}

func (m *activeItemManager) isActive(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.items[name]
}

func (m *activeItemManager) setActive(name string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active {
		m.items[name] = true
	} else {
		delete(m.items, name)
	}
}

// getInactiveItems returns items that are no longer in the new set
func (m *activeItemManager) getInactiveItems(newItems map[string]struct{}) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var inactive []string
	for name := range m.items {
		if _, exists := newItems[name]; !exists {
			inactive = append(inactive, name)
		}
	}
	return inactive
}

func (m *activeItemManager) removeItems(items []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		delete(m.items, item)
	}
}

func removeObsoleteItems(manager *activeItemManager, newItems map[string]struct{}, removeFunc func(items []string)) {
	itemsToRemove := manager.getInactiveItems(newItems)
	if len(itemsToRemove) > 0 {
		logging.Debug("Transport", "Removing %d %ss: %v", len(itemsToRemove), manager.itemType, itemsToRemove)
		removeFunc(itemsToRemove)
		manager.removeItems(itemsToRemove)
	}
}

func toolHandlerFactory(a *AggregatorServer, exposedName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !a.toolManager.isActive(exposedName) {
			return nil, fmt.Errorf("tool '%s' is no longer available", exposedName)
		}
		return a.agg.CallTool(ctx, exposedName, req.GetArguments())
	}
}

func promptHandlerFactory(a *AggregatorServer, exposedName string) server.PromptHandlerFunc {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		if !a.promptManager.isActive(exposedName) {
			return nil, fmt.Errorf("prompt %s is no longer available", exposedName)
		}

		args := make(map[string]interface{}, len(req.Params.Arguments))
		for k, v := range req.Params.Arguments {
			args[k] = v
		}
		return a.agg.GetPrompt(ctx, exposedName, args)
	}
}

func resourceHandlerFactory(a *AggregatorServer, exposedURI string) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if !a.resourceManager.isActive(exposedURI) {
			return nil, fmt.Errorf("resource %s is no longer available", exposedURI)
		}

		result, err := a.agg.ReadResource(ctx, exposedURI)
		if err != nil {
			return nil, err
		}
		return result.Contents, nil
	}
}

// withoutReserved drops backend tools that would shadow a management tool.
func withoutReserved(tools []mcp.Tool) []mcp.Tool {
	out := tools[:0:0]
	for _, t := range tools {
		if t.Name == StatisticsToolName || t.Name == ServerCapabilitiesToolName {
			logging.Warn("Transport", "Backend tool %s hidden by the management tool of the same name", t.Name)
			continue
		}
		out = append(out, t)
	}
	return out
}

func managementTools(agg *Aggregator) []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool(StatisticsToolName,
				mcp.WithDescription("Report aggregator statistics: backends, capability counts, connections and response times"),
			),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return jsonResult(agg.GetStatistics())
			},
		},
		{
			Tool: mcp.NewTool(ServerCapabilitiesToolName,
				mcp.WithDescription("List the public tool, prompt and resource names contributed by one backend"),
				mcp.WithString("server", mcp.Required(), mcp.Description("Backend name")),
			),
			Handler: func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				name, err := req.RequireString("server")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				caps, err := agg.GetServerCapabilities(name)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return jsonResult(caps)
			},
		},
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
