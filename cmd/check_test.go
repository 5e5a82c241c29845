package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCheck(t *testing.T) {
	tests := []struct {
		name       string
		files      map[string]string
		wantErr    bool
		wantOutput []string
	}{
		{
			name: "valid configuration",
			files: map[string]string{
				"config.yaml": `aggregator:
  conflictPolicy: first-wins
servers:
  - name: files
    type: stdio
    command: mcp-files
    args: ["--root", "/tmp"]
`,
				"mcpservers/search.yaml": `type: streamable-http
url: http://localhost:9000/mcp
`,
			},
			wantOutput: []string{"files", "search", "mcp-files --root /tmp", "http://localhost:9000/mcp", "is valid", "2 backends enabled"},
		},
		{
			name:       "empty directory",
			files:      map[string]string{},
			wantOutput: []string{"is valid", "0 backends enabled"},
		},
		{
			name: "broken backend file",
			files: map[string]string{
				"mcpservers/broken.yaml": "type: [unterminated",
			},
			wantErr:    true,
			wantOutput: []string{"broken.yaml"},
		},
		{
			name: "backend name containing the separator",
			files: map[string]string{
				"config.yaml": `servers:
  - name: web.search
    type: stdio
    command: search
`,
			},
			wantErr:    true,
			wantOutput: []string{"web.search"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, filepath.Join(dir, name), content)
			}
			useConfigPath(t, dir)

			var buf bytes.Buffer
			err := runCheck(&buf, &checkOptions{})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "problems found")
			} else {
				require.NoError(t, err)
			}
			for _, want := range tt.wantOutput {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestRunCheck_InvalidAggregatorSettings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), "aggregator:\n  conflictPolicy: merge\n")
	useConfigPath(t, dir)

	var buf bytes.Buffer
	err := runCheck(&buf, &checkOptions{quiet: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflictPolicy")
}

func TestRunCheck_QuietPrintsNothingWhenValid(t *testing.T) {
	useConfigPath(t, t.TempDir())

	var buf bytes.Buffer
	require.NoError(t, runCheck(&buf, &checkOptions{quiet: true}))
	assert.Empty(t, buf.String())
}
