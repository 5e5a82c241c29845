// Package mcpserver provides the clients switchboard uses to talk to backend
// MCP servers.
//
// Every transport implements MCPClient:
//
//   - StdioClient spawns a local process and speaks MCP over stdin/stdout.
//     The process' stderr is forwarded to the debug log.
//   - StreamableHTTPClient talks to a remote streamable HTTP endpoint.
//   - SSEClient talks to a remote Server-Sent Events endpoint.
//
// NewMCPClient picks the implementation from a config.BackendConfig. Remote
// backends that declare OAuth credentials are reached through an HTTP client
// that performs the client-credentials grant and refreshes tokens as needed.
//
// Clients are created disconnected. Initialize starts the transport and runs
// the MCP handshake; Close tears it down and may be called more than once.
package mcpserver
