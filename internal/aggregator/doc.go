// Package aggregator presents many backend MCP servers as one.
//
// # Components
//
// The package is built from four parts, leaves first:
//
//   - Namespacing (namespace.go). ValidateBackendName checks backend
//     identifiers and Resolve decides, without side effects, the public name
//     of a capability offered by a backend when another backend may already
//     hold the name. The outcome is a tagged Decision.
//   - ResourceRegistry (registry.go). Maps public names to the owning backend
//     and the backend's original name, separately for tools, prompts and
//     resources.
//   - ConnectionStrategy (connection*.go). Hands out live clients. The
//     persistent strategy keeps one client per backend and reconnects with
//     exponential backoff; the lazy strategy connects on demand and keeps a
//     small idle pool per backend.
//   - Aggregator (aggregator.go). The facade: initialization, reload, the six
//     MCP operations and the management operations.
//
// AggregatorServer (server.go) exposes an Aggregator over streamable HTTP,
// SSE or stdio using mcp-go and keeps the advertised items in sync with the
// registry.
//
// # Conflict policies
//
// When a second backend offers a name that already has a holder:
//
//	prefix      the newcomer is registered as "<backend>.<name>"
//	first-wins  the newcomer is dropped
//	error       the newcomer's entry fails with a ConflictError; the rest of
//	            that backend still registers
//
// Removing a backend leaves its names vacant. A shadowed entry from another
// backend is not promoted; it comes back only when that backend is loaded again.
//
// # Lifecycle
//
//	Uninitialized -> Initializing -> Initialized -> ShuttingDown -> Shutdown
//
// Concurrent Initialize calls share one execution. A forced Initialize (or
// Reload) builds a new registry and strategy and swaps them in only when the
// load succeeded, so readers keep the previous view meanwhile.
//
// Backends load in parallel by default; a failing backend is logged and its
// capabilities are absent. With strict initialization the first failure is
// returned instead. Each backend load is bounded by its timeout.
//
// Usage:
//
//	opts, err := aggregator.OptionsFromConfig(cfg.Aggregator)
//	if err != nil {
//		return err
//	}
//	agg := aggregator.New(opts)
//	if err := agg.Initialize(ctx, cfg.EnabledServers(), aggregator.InitOptions{}); err != nil {
//		return err
//	}
//	defer agg.Shutdown(context.Background())
//
//	result, err := agg.CallTool(ctx, "github.search_issues", map[string]interface{}{"q": "bug"})
package aggregator
