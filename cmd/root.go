package cmd

import (
	"errors"
	"os"

	"switchboard/internal/aggregator"
	"switchboard/internal/config"
	"switchboard/internal/mcpserver"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfigError indicates an invalid configuration directory.
	ExitCodeConfigError = 2
	// ExitCodeBackendError indicates a backend could not be reached or loaded in time.
	ExitCodeBackendError = 3
	// ExitCodeConflict indicates a capability name conflict under the error policy.
	ExitCodeConflict = 4
)

// rootCmd represents the base command for the switchboard application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "switchboard",
	Short: "Aggregate many MCP servers behind one endpoint",
	Long: `switchboard connects to any number of backend MCP servers (local processes
or remote endpoints) and presents their tools, prompts and resources as a
single MCP server. Name collisions between backends are resolved by a
configurable conflict policy.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command and the MCP client identity.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
	mcpserver.ClientVersion = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "switchboard version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var validation config.ValidationErrors
	if errors.As(err, &validation) {
		return ExitCodeConfigError
	}

	var invalidName *aggregator.InvalidNameError
	if errors.As(err, &invalidName) {
		return ExitCodeConfigError
	}

	var conflict *aggregator.ConflictError
	if errors.As(err, &conflict) {
		return ExitCodeConflict
	}

	var timeout *aggregator.TimeoutError
	if errors.As(err, &timeout) {
		return ExitCodeBackendError
	}

	var connErr *aggregator.ConnectionError
	if errors.As(err, &connErr) {
		return ExitCodeBackendError
	}

	// Default to general error
	return ExitCodeError
}

// configPath is shared by every command that reads the config directory.
var configPath string

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServersCmd())
	rootCmd.AddCommand(newCheckCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default is $HOME/.config/switchboard)")
}
