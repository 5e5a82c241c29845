package cmd

import (
	"context"
	"fmt"

	"switchboard/internal/app"

	"github.com/spf13/cobra"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveSilent discards all log output.
var serveSilent bool

// serveCmd starts the aggregator and exposes it over the configured transport.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the switchboard aggregator",
	Long: `Connects to every enabled backend MCP server and serves their combined
tools, prompts and resources as a single MCP server.

Configuration is read from a single directory (--config-path, default
$HOME/.config/switchboard):
  - config.yaml  aggregator settings and inline backend definitions
  - mcpservers/  one YAML file per backend

The transport is chosen by aggregator.transport: streamable-http (default),
sse or stdio. With stdio, logs go to stderr so stdout carries only the
protocol. Press Ctrl+C to stop; every backend connection is closed on exit.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveSilent, configPath)
	cfg.Version = GetVersion()

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable general debug logging")
	serveCmd.Flags().BoolVar(&serveSilent, "silent", false, "Suppress all log output")
}
