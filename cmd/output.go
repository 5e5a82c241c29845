package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"switchboard/internal/config"
	"switchboard/pkg/logging"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"sigs.k8s.io/yaml"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// OutputFormatTable renders human readable tables
	OutputFormatTable OutputFormat = "table"
	// OutputFormatJSON renders indented JSON
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML renders YAML converted from the JSON form
	OutputFormatYAML OutputFormat = "yaml"
)

// validateOutputFormat returns an error listing the valid formats.
func validateOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q (valid: table, json, yaml)", format)
	}
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format OutputFormat, v interface{}) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case OutputFormatJSON:
		data, err = json.MarshalIndent(v, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case OutputFormatYAML:
		data, err = yaml.Marshal(v)
	default:
		return fmt.Errorf("format %s is not a structured format", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatUpper
	return t
}

// withSpinner runs fn while showing a progress spinner on stderr.
func withSpinner(quiet bool, suffix string, fn func() error) error {
	if quiet {
		return fn()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	s.Start()
	defer s.Stop()

	err := fn()
	if err != nil {
		s.FinalMSG = text.FgRed.Sprint("Failed: "+suffix) + "\n"
	}
	return err
}

// initCLILogging keeps one-shot commands quiet unless something goes wrong.
func initCLILogging(debug, quiet bool) {
	level := logging.LevelWarn
	if debug {
		level = logging.LevelDebug
	}
	logging.Init(logging.Options{Level: level, Output: os.Stderr, Silent: quiet})
}

// resolveConfigPath returns --config-path or the default directory.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetDefaultConfigPath()
}
