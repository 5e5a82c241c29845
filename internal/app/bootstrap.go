package app

import (
	"context"
	"fmt"
	"os"

	"switchboard/internal/config"
	"switchboard/pkg/logging"
)

// Application bootstraps and runs switchboard.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: load configuration, initialize logging, build the aggregator
//  2. Execution phase: connect the backends and serve until interrupted
//
// Example usage:
//
//	cfg := app.NewConfig(false, false, "")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads the configuration from cfg.ConfigPath (or the default
// directory), configures logging from it and creates the services. Nothing
// connects to a backend until Run.
func NewApplication(cfg *Config) (*Application, error) {
	initLogging(cfg, config.LoggingConfig{})

	if cfg.ConfigPath == "" {
		path, err := config.GetDefaultConfigPath()
		if err != nil {
			return nil, err
		}
		cfg.ConfigPath = path
	}

	swCfg, err := config.LoadConfig(cfg.ConfigPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration from %s", cfg.ConfigPath)
		return nil, fmt.Errorf("failed to load configuration from %s: %w", cfg.ConfigPath, err)
	}
	cfg.SwitchboardConfig = &swCfg

	// Re-initialize now that the configured level and format are known.
	initLogging(cfg, swCfg.Logging)

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logging.Info("Bootstrap", "Configured %d backends from %s", len(swCfg.EnabledServers()), cfg.ConfigPath)
	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// initLogging always writes to stderr: stdout may carry the MCP protocol.
func initLogging(cfg *Config, lc config.LoggingConfig) {
	level := logging.ParseLevel(lc.Level)
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(logging.Options{
		Level:  level,
		Format: logging.Format(lc.Format),
		Output: os.Stderr,
		Silent: cfg.Silent,
	})
}

// Services returns the services created during bootstrap.
func (a *Application) Services() *Services {
	return a.services
}

// Run connects to the backends and serves the aggregated endpoint until ctx
// is cancelled or the process receives SIGINT or SIGTERM.
func (a *Application) Run(ctx context.Context) error {
	return runServer(ctx, a.config, a.services)
}
