package cmd

import (
	"fmt"
	"io"
	"strings"

	"switchboard/internal/aggregator"
	"switchboard/internal/config"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

type checkOptions struct {
	quiet bool
}

// newCheckCmd validates the configuration directory without connecting to
// any backend.
func newCheckCmd() *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration directory",
		Long: `Reads config.yaml and every file in mcpservers/, validates aggregator
settings and backend definitions and lists the backends that would be
loaded. No backend is contacted.

Exits with code 2 if the configuration is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only report problems")
	return cmd
}

func runCheck(w io.Writer, opts *checkOptions) error {
	initCLILogging(false, true)

	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	result, err := config.Load(path)
	if err != nil {
		return err
	}

	var problems []string
	for _, fe := range result.FileErrors.Errors {
		problems = append(problems, fmt.Sprintf("%s (%s): %s", fe.FileName, fe.ErrorType, fe.Message))
	}
	for _, s := range result.Config.Servers {
		if err := aggregator.ValidateBackendName(s.Name); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if _, err := aggregator.OptionsFromConfig(result.Config.Aggregator); err != nil {
		problems = append(problems, err.Error())
	}

	if !opts.quiet {
		renderBackendsTable(w, result.Config.Servers)
	}

	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(w, "%s %s\n", text.FgRed.Sprint("✗"), p)
		}
		return fmt.Errorf("%d problems found in %s", len(problems), path)
	}

	if !opts.quiet {
		fmt.Fprintf(w, "%s Configuration in %s is valid (%d backends enabled)\n",
			text.FgGreen.Sprint("✓"), path, len(result.Config.EnabledServers()))
	}
	return nil
}

func renderBackendsTable(w io.Writer, servers []config.BackendConfig) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Type", "Target", "Enabled"})
	for _, s := range servers {
		t.AppendRow(table.Row{s.Name, s.Type, backendTarget(s), !s.Disabled})
	}
	t.Render()
}

func backendTarget(s config.BackendConfig) string {
	if s.IsRemote() {
		return s.URL
	}
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}
