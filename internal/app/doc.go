// Package app provides application bootstrap and lifecycle management for switchboard.
//
// # Architecture Overview
//
// The app package wires the configuration, the aggregator and the MCP
// endpoint together:
//
//  1. **Configuration (`config.go`)**: runtime flags such as debug, silent and the config directory
//  2. **Bootstrap (`bootstrap.go`)**: loads the config directory and configures logging
//  3. **Services (`services.go`)**: builds the Aggregator and the AggregatorServer from the loaded settings
//  4. **Modes (`modes.go`)**: runs the server until interrupted and handles hot reload
//
// # Configuration Directory
//
// NewApplication reads config.yaml and the mcpservers/ directory from
// Config.ConfigPath, or from ~/.config/switchboard when no path is given.
// SWITCHBOARD_* environment variables override file values. See package
// config for the file format.
//
// # Lifecycle
//
// Run initializes the aggregator with every enabled backend, starts the
// configured transport and blocks until the context is cancelled or the
// process receives SIGINT or SIGTERM. Shutdown stops the transport first and
// then closes every backend connection.
//
// When aggregator.watchConfig is true, changes to config.yaml or to a file
// in mcpservers/ trigger a reload of the backend set. A reload that fails
// keeps the previous backends serving.
//
// # Usage
//
//	cfg := app.NewConfig(debug, silent, configPath)
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
package app
