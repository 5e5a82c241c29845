package config

import "time"

const (
	DefaultPort                 = 8090
	DefaultHost                 = "localhost"
	DefaultLoadTimeout          = 30 * time.Second
	DefaultIdleTimeout          = 5 * time.Minute
	DefaultHealthCheckInterval  = 30 * time.Second
	DefaultPoolSize             = 2
	DefaultMaxReconnectAttempts = 3

	// MaxBackendNameLength bounds backend identifiers.
	MaxBackendNameLength = 64
)

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() SwitchboardConfig {
	return SwitchboardConfig{
		Aggregator: AggregatorConfig{
			Port:                 DefaultPort,
			Host:                 DefaultHost,
			Transport:            MCPTransportStreamableHTTP,
			ConflictPolicy:       ConflictPolicyPrefix,
			ConnectionMode:       ConnectionModePersistent,
			LoadingMode:          LoadingModeParallel,
			LoadTimeout:          DefaultLoadTimeout,
			IdleTimeout:          DefaultIdleTimeout,
			HealthCheckInterval:  DefaultHealthCheckInterval,
			PoolSize:             DefaultPoolSize,
			MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
