package config

import "time"

// SwitchboardConfig is the top-level configuration structure for switchboard.
type SwitchboardConfig struct {
	Aggregator AggregatorConfig `yaml:"aggregator" json:"aggregator" envPrefix:"AGGREGATOR_"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging" envPrefix:"LOG_"`
	// Servers holds backends declared inline in config.yaml. Backends defined
	// in the mcpservers/ directory are appended by the loader.
	Servers []BackendConfig `yaml:"servers,omitempty" json:"servers,omitempty"`
}

const (
	// MCPTransportStreamableHTTP is the streamable HTTP transport.
	MCPTransportStreamableHTTP = "streamable-http"
	// MCPTransportSSE is the Server-Sent Events transport.
	MCPTransportSSE = "sse"
	// MCPTransportStdio is the standard I/O transport.
	MCPTransportStdio = "stdio"
)

// Conflict policies for capabilities offered by more than one backend.
const (
	ConflictPolicyPrefix    = "prefix"
	ConflictPolicyFirstWins = "first-wins"
	ConflictPolicyError     = "error"
)

// Connection modes.
const (
	ConnectionModePersistent = "persistent"
	ConnectionModeLazy       = "lazy"
)

// Loading modes.
const (
	LoadingModeParallel   = "parallel"
	LoadingModeSequential = "sequential"
)

// AggregatorConfig defines the behaviour of the aggregator and its exposed endpoint.
type AggregatorConfig struct {
	Host      string `yaml:"host,omitempty" json:"host,omitempty" env:"HOST"`                // Host to bind to (default: localhost)
	Port      int    `yaml:"port,omitempty" json:"port,omitempty" env:"PORT"`                // Port for the exposed endpoint (default: 8090)
	Transport string `yaml:"transport,omitempty" json:"transport,omitempty" env:"TRANSPORT"` // streamable-http, sse or stdio

	ConflictPolicy       string `yaml:"conflictPolicy,omitempty" json:"conflictPolicy,omitempty" env:"CONFLICT_POLICY"`
	ConnectionMode       string `yaml:"connectionMode,omitempty" json:"connectionMode,omitempty" env:"CONNECTION_MODE"`
	LoadingMode          string `yaml:"loadingMode,omitempty" json:"loadingMode,omitempty" env:"LOADING_MODE"`
	StrictInitialization bool   `yaml:"strictInitialization,omitempty" json:"strictInitialization,omitempty" env:"STRICT_INITIALIZATION"`

	LoadTimeout         time.Duration `yaml:"loadTimeout,omitempty" json:"loadTimeout,omitempty" env:"LOAD_TIMEOUT"`
	IdleTimeout         time.Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty" env:"IDLE_TIMEOUT"`
	HealthCheckInterval time.Duration `yaml:"healthCheckInterval,omitempty" json:"healthCheckInterval,omitempty" env:"HEALTH_CHECK_INTERVAL"`

	PoolSize             int `yaml:"poolSize,omitempty" json:"poolSize,omitempty" env:"POOL_SIZE"`
	MaxReconnectAttempts int `yaml:"maxReconnectAttempts,omitempty" json:"maxReconnectAttempts,omitempty" env:"MAX_RECONNECT_ATTEMPTS"`

	// ManagementTools exposes statistics and capability inspection as MCP tools.
	ManagementTools bool `yaml:"managementTools,omitempty" json:"managementTools,omitempty" env:"MANAGEMENT_TOOLS"`

	// WatchConfig reloads backends when files in the config directory change.
	WatchConfig bool `yaml:"watchConfig,omitempty" json:"watchConfig,omitempty" env:"WATCH_CONFIG"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty" env:"LEVEL"`
	Format string `yaml:"format,omitempty" json:"format,omitempty" env:"FORMAT"`
}

// BackendType is the transport used to reach a backend MCP server.
type BackendType string

const (
	BackendTypeStdio          BackendType = "stdio"
	BackendTypeSSE            BackendType = "sse"
	BackendTypeStreamableHTTP BackendType = "streamable-http"
)

// BackendConfig describes one backend MCP server.
type BackendConfig struct {
	Name string      `yaml:"name" json:"name"`
	Type BackendType `yaml:"type" json:"type"`

	// stdio
	Command string            `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// sse / streamable-http
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	OAuth   *OAuthCredentials `yaml:"oauth,omitempty" json:"oauth,omitempty"`

	// Timeout overrides aggregator.loadTimeout for this backend.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// IsRemote reports whether the backend is reached over the network.
func (b BackendConfig) IsRemote() bool {
	return b.Type == BackendTypeSSE || b.Type == BackendTypeStreamableHTTP
}

// OAuthCredentials configures the OAuth2 client-credentials grant for a remote backend.
type OAuthCredentials struct {
	TokenURL     string   `yaml:"tokenUrl" json:"tokenUrl"`
	ClientID     string   `yaml:"clientId" json:"clientId"`
	ClientSecret string   `yaml:"clientSecret,omitempty" json:"-"`
	Scopes       []string `yaml:"scopes,omitempty" json:"scopes,omitempty"`
	// ClientSecretEnv names an environment variable holding the secret.
	ClientSecretEnv string `yaml:"clientSecretEnv,omitempty" json:"clientSecretEnv,omitempty"`
}

// EnabledServers returns the backends that are not disabled.
func (c SwitchboardConfig) EnabledServers() []BackendConfig {
	servers := make([]BackendConfig, 0, len(c.Servers))
	for _, s := range c.Servers {
		if !s.Disabled {
			servers = append(servers, s)
		}
	}
	return servers
}
