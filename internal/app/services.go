package app

import (
	"fmt"

	"switchboard/internal/aggregator"
	"switchboard/internal/mcpserver"
)

// Services holds the components created during bootstrap.
type Services struct {
	// Aggregator merges the backends into one capability set.
	Aggregator *aggregator.Aggregator

	// Server exposes the aggregator over the configured MCP transport.
	Server *aggregator.AggregatorServer
}

// InitializeServices creates the aggregator and its exposure server from the
// loaded configuration. The aggregator starts uninitialized.
func InitializeServices(cfg *Config) (*Services, error) {
	if cfg.SwitchboardConfig == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	aggCfg := cfg.SwitchboardConfig.Aggregator

	opts, err := aggregator.OptionsFromConfig(aggCfg)
	if err != nil {
		return nil, fmt.Errorf("invalid aggregator settings: %w", err)
	}

	version := cfg.Version
	if version == "" {
		version = mcpserver.ClientVersion
	}

	agg := aggregator.New(opts)
	srv := aggregator.NewAggregatorServer(aggregator.ServerConfigFromConfig(aggCfg, version), agg)

	return &Services{
		Aggregator: agg,
		Server:     srv,
	}, nil
}
