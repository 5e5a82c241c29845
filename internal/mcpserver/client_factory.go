package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"switchboard/internal/config"
	"switchboard/pkg/logging"

	"golang.org/x/oauth2/clientcredentials"
)

// NewMCPClient creates the client matching the backend's transport type.
// The returned client is not connected; call Initialize.
//
// Supported types:
//   - "stdio": StdioClient spawning cfg.Command
//   - "streamable-http": StreamableHTTPClient for cfg.URL
//   - "sse": SSEClient for cfg.URL
//
// Remote backends with OAuth credentials get an HTTP client that obtains and
// refreshes tokens with the client-credentials grant.
func NewMCPClient(cfg config.BackendConfig) (MCPClient, error) {
	switch cfg.Type {
	case config.BackendTypeStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("command is required for stdio type")
		}
		return NewStdioClient(cfg.Name, cfg.Command, cfg.Args, cfg.Env), nil

	case config.BackendTypeStreamableHTTP, config.BackendTypeSSE:
		if cfg.URL == "" {
			return nil, fmt.Errorf("url is required for %s type", cfg.Type)
		}
		httpClient, err := newHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Type == config.BackendTypeSSE {
			return NewSSEClient(cfg.URL, cfg.Headers, httpClient), nil
		}
		return NewStreamableHTTPClient(cfg.URL, cfg.Headers, httpClient), nil

	default:
		return nil, fmt.Errorf("unsupported MCP server type: %s (supported: %s, %s, %s)",
			cfg.Type, config.BackendTypeStdio, config.BackendTypeStreamableHTTP, config.BackendTypeSSE)
	}
}

// newHTTPClient returns nil when the backend needs no special HTTP client.
func newHTTPClient(cfg config.BackendConfig) (*http.Client, error) {
	if cfg.OAuth == nil {
		return nil, nil
	}

	secret, err := resolveClientSecret(cfg.OAuth)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", cfg.Name, err)
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: secret,
		TokenURL:     cfg.OAuth.TokenURL,
		Scopes:       cfg.OAuth.Scopes,
	}

	logging.Debug("MCPClientFactory", "Using client-credentials OAuth for %s (token URL %s)", cfg.Name, cfg.OAuth.TokenURL)

	// Token refreshes happen on later requests, so the client must not be
	// bound to a request-scoped context.
	return cc.Client(context.Background()), nil
}

func resolveClientSecret(creds *config.OAuthCredentials) (string, error) {
	if creds.ClientSecretEnv == "" {
		return creds.ClientSecret, nil
	}
	secret := os.Getenv(creds.ClientSecretEnv)
	if secret == "" {
		return "", fmt.Errorf("environment variable %s holding the OAuth client secret is empty", creds.ClientSecretEnv)
	}
	return secret, nil
}
