package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"switchboard/internal/aggregator"
	"switchboard/internal/config"
	"switchboard/pkg/logging"
)

// shutdownTimeout bounds closing the transport and the backend connections.
const shutdownTimeout = 10 * time.Second

// runServer initializes the aggregator, starts the MCP endpoint and blocks
// until ctx is done or SIGINT/SIGTERM arrives. With aggregator.watchConfig
// set, changes in the config directory reload the backend set.
func runServer(ctx context.Context, cfg *Config, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agg := services.Aggregator
	swCfg := cfg.SwitchboardConfig

	if err := agg.Initialize(ctx, swCfg.EnabledServers(), aggregator.InitOptions{}); err != nil {
		agg.Shutdown(context.Background())
		return fmt.Errorf("failed to initialize aggregator: %w", err)
	}

	if err := services.Server.Start(ctx); err != nil {
		agg.Shutdown(context.Background())
		return fmt.Errorf("failed to start MCP endpoint: %w", err)
	}

	stats := agg.GetStatistics()
	logging.Info("Serve", "Serving %d tools, %d prompts and %d resources from %d backends at %s",
		stats.TotalTools, stats.TotalPrompts, stats.TotalResources, stats.LoadedServers, services.Server.GetEndpoint())

	if swCfg.Aggregator.WatchConfig {
		watcher := config.NewWatcher(cfg.ConfigPath, config.DefaultWatchDebounce, func() {
			_ = reloadBackends(ctx, cfg.ConfigPath, agg)
		})
		if err := watcher.Start(ctx); err != nil {
			logging.Warn("Serve", "Config hot reload disabled: %v", err)
		}
	}

	<-ctx.Done()

	logging.Info("Serve", "Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := services.Server.Stop(shutdownCtx); err != nil {
		logging.Warn("Serve", "Error stopping MCP endpoint: %v", err)
	}
	agg.Shutdown(shutdownCtx)
	return nil
}

// reloadBackends re-reads the config directory and swaps in the new backend
// set. Aggregator settings other than the backend list need a restart.
func reloadBackends(ctx context.Context, configPath string, agg *aggregator.Aggregator) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	swCfg, err := config.LoadConfig(configPath)
	if err != nil {
		logging.Error("Serve", err, "Ignoring configuration change")
		return err
	}

	logging.Info("Serve", "Configuration changed, reloading %d backends", len(swCfg.EnabledServers()))
	if err := agg.Reload(ctx, swCfg.EnabledServers()); err != nil {
		logging.Error("Serve", err, "Reload failed, keeping the previous backends")
		return err
	}
	return nil
}
