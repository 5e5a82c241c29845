// Package logging provides subsystem-tagged structured logging for switchboard.
//
// The package wraps Go's log/slog with printf-style helpers that attach a
// subsystem attribute to every record, so output from the aggregator, the
// connection layer and the configuration loader can be filtered independently.
//
// # Usage
//
//	logging.Init(logging.Options{Level: logging.LevelInfo, Format: logging.FormatText})
//
//	logging.Info("Bootstrap", "Loaded %d backends", len(backends))
//	logging.Debug("Connections", "Reusing pooled handle for %s", name)
//	logging.Warn("Aggregator", "Backend %s failed to load", name)
//	logging.Error("ConfigLoader", err, "Failed to parse %s", path)
//
// Subsystems in use:
//
//   - Bootstrap: application startup and shutdown
//   - ConfigLoader / ConfigWatcher: configuration loading and hot reload
//   - Aggregator: initialization, loading and routing
//   - Registry: capability registration and conflicts
//   - Connections: backend connection lifecycle
//   - StdioClient / SSEClient / StreamableHTTPClient: transport clients
//   - Transport: the exposed MCP endpoint
//
// Before Init is called only warnings and errors are written (to stderr), which
// keeps library consumers and tests quiet by default.
//
// The logger is safe for concurrent use.
package logging
