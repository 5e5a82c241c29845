// Package config loads and validates switchboard configuration.
//
// Configuration lives in a single directory (default ~/.config/switchboard,
// overridable with --config-path):
//
//	config.yaml          aggregator, logging and optional inline servers
//	mcpservers/*.yaml    one backend definition per file
//
// Loading starts from GetDefaultConfig, overlays config.yaml, then applies
// SWITCHBOARD_* environment variables (for example
// SWITCHBOARD_AGGREGATOR_CONFLICT_POLICY=first-wins) and finally appends the
// backend files. Backend files that fail to parse or validate are skipped and
// reported; errors in config.yaml itself abort loading.
//
// Example backend definition:
//
//	name: github
//	type: stdio
//	command: github-mcp-server
//	args: ["stdio"]
//	env:
//	  GITHUB_TOKEN: ghp_xxx
//
// A remote backend using the OAuth2 client-credentials grant:
//
//	name: search
//	type: streamable-http
//	url: https://search.internal/mcp
//	oauth:
//	  tokenUrl: https://auth.internal/oauth/token
//	  clientId: switchboard
//	  clientSecretEnv: SEARCH_CLIENT_SECRET
//
// Watcher reports changes to any of these files so the aggregator can reload.
package config
