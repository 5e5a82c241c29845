package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"switchboard/internal/aggregator"
	"switchboard/internal/config"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersion(t *testing.T) {
	original := rootCmd.Version
	defer SetVersion(original)

	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", rootCmd.Version)
	assert.Equal(t, "1.2.3-test", GetVersion())
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "switchboard", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config-path"))
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "switchboard version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	require.NoError(t, testCmd.Execute())

	assert.Equal(t, "switchboard version 1.0.0\n", buf.String())
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}

	for _, expected := range []string{"version", "serve", "servers", "check"} {
		assert.True(t, found[expected], "expected subcommand %s to be registered", expected)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "generic error",
			err:  errors.New("boom"),
			want: ExitCodeError,
		},
		{
			name: "validation errors",
			err:  fmt.Errorf("invalid configuration: %w", config.ValidationErrors{{Field: "aggregator.port", Message: "bad"}}),
			want: ExitCodeConfigError,
		},
		{
			name: "invalid backend name",
			err:  &aggregator.InvalidNameError{Name: "a.b", Reason: "separator"},
			want: ExitCodeConfigError,
		},
		{
			name: "conflict",
			err:  fmt.Errorf("load: %w", &aggregator.ConflictError{Name: "search", Holder: "a", Candidate: "b"}),
			want: ExitCodeConflict,
		},
		{
			name: "connection failure",
			err:  fmt.Errorf("failed to initialize aggregator: %w", &aggregator.ConnectionError{Backend: "a", Err: errors.New("refused")}),
			want: ExitCodeBackendError,
		},
		{
			name: "timeout",
			err:  &aggregator.TimeoutError{Backend: "a", Err: errors.New("deadline")},
			want: ExitCodeBackendError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}
