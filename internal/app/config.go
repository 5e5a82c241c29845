package app

import (
	"switchboard/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug settings
	Debug bool

	// Silent discards all log output
	Silent bool

	// Configuration directory. Empty means ~/.config/switchboard.
	ConfigPath string

	// Version is reported to MCP clients.
	Version string

	// Loaded configuration, set during bootstrap
	SwitchboardConfig *config.SwitchboardConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug, silent bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		Silent:     silent,
		ConfigPath: configPath,
	}
}
