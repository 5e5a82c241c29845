package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"switchboard/internal/aggregator"
	"switchboard/internal/config"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

type serversOptions struct {
	output       string
	quiet        bool
	debug        bool
	capabilities bool
}

// serversReport is the structured output of the servers command.
type serversReport struct {
	Servers    []aggregator.ServerCapabilities `json:"servers"`
	Statistics aggregator.Statistics           `json:"statistics"`
}

func newServersCmd() *cobra.Command {
	opts := &serversOptions{}

	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Connect to the configured backends and list what they offer",
		Long: `Connects once to every enabled backend in the configuration directory,
loads their tools, prompts and resources under the configured conflict
policy, prints the result and disconnects.

Examples:
  switchboard servers
  switchboard servers --capabilities
  switchboard servers -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServers(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json, yaml)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress progress and log output")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.capabilities, "capabilities", false, "Also list every public capability name")

	return cmd
}

func runServers(ctx context.Context, w io.Writer, opts *serversOptions) error {
	if err := validateOutputFormat(opts.output); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	format := OutputFormat(opts.output)
	initCLILogging(opts.debug, opts.quiet)

	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	swCfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	aggOpts, err := aggregator.OptionsFromConfig(swCfg.Aggregator)
	if err != nil {
		return err
	}

	agg := aggregator.New(aggOpts)
	defer agg.Shutdown(context.Background())

	backends := swCfg.EnabledServers()
	err = withSpinner(opts.quiet || format != OutputFormatTable,
		fmt.Sprintf("Connecting to %d backends...", len(backends)),
		func() error {
			return agg.Initialize(ctx, backends, aggregator.InitOptions{})
		})
	if err != nil {
		return err
	}

	servers, err := agg.ListServers()
	if err != nil {
		return err
	}

	if format != OutputFormatTable {
		return writeStructured(w, format, serversReport{Servers: servers, Statistics: agg.GetStatistics()})
	}

	renderServersTable(w, servers)
	if opts.capabilities {
		renderCapabilitiesTable(w, servers)
	}

	stats := agg.GetStatistics()
	fmt.Fprintf(w, "%d of %d backends loaded: %d tools, %d prompts, %d resources, %d name conflicts (%s policy)\n",
		stats.LoadedServers, stats.ServerCount, stats.TotalTools, stats.TotalPrompts, stats.TotalResources,
		stats.Conflicts, aggOpts.ConflictPolicy)
	return nil
}

func renderServersTable(w io.Writer, servers []aggregator.ServerCapabilities) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Type", "Status", "Tools", "Prompts", "Resources", "Load time", "Error"})
	for _, s := range servers {
		t.AppendRow(table.Row{
			s.Name,
			s.Type,
			statusText(s),
			len(s.Tools),
			len(s.Prompts),
			len(s.Resources),
			s.LoadDuration.Round(time.Millisecond),
			truncate(s.LastError, 60),
		})
	}
	t.Render()
}

func renderCapabilitiesTable(w io.Writer, servers []aggregator.ServerCapabilities) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Kind", "Name", "Backend"})
	for _, s := range servers {
		for _, name := range s.Tools {
			t.AppendRow(table.Row{aggregator.KindTool, name, s.Name})
		}
		for _, name := range s.Prompts {
			t.AppendRow(table.Row{aggregator.KindPrompt, name, s.Name})
		}
		for _, name := range s.Resources {
			t.AppendRow(table.Row{aggregator.KindResource, name, s.Name})
		}
	}
	t.SortBy([]table.SortBy{{Name: "Kind"}, {Name: "Name"}})
	t.Render()
}

func statusText(s aggregator.ServerCapabilities) string {
	switch {
	case s.Loaded:
		return text.FgGreen.Sprint("Loaded")
	case s.LastError != "":
		return text.FgRed.Sprint("Failed")
	default:
		return text.FgHiBlack.Sprint("Pending")
	}
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
