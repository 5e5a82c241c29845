package app

import (
	"path/filepath"
	"testing"

	"switchboard/internal/aggregator"
	"switchboard/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(true, false, "/tmp/switchboard")

	assert.True(t, cfg.Debug)
	assert.False(t, cfg.Silent)
	assert.Equal(t, "/tmp/switchboard", cfg.ConfigPath)
	assert.Nil(t, cfg.SwitchboardConfig)
}

func TestNewApplication_LoadsConfigDirectory(t *testing.T) {
	dir := writeConfig(t, 9123, "http://127.0.0.1:1/mcp", "  conflictPolicy: first-wins")
	writeFile(t, filepath.Join(dir, config.ServersDirName, "search.yaml"), `type: stdio
command: search-server
`)

	application, err := NewApplication(NewConfig(false, true, dir))
	require.NoError(t, err)

	cfg := application.config.SwitchboardConfig
	require.NotNil(t, cfg)
	assert.Equal(t, 9123, cfg.Aggregator.Port)
	assert.Equal(t, config.ConflictPolicyFirstWins, cfg.Aggregator.ConflictPolicy)
	require.Len(t, cfg.EnabledServers(), 2)
	assert.Equal(t, "echo", cfg.Servers[0].Name)
	assert.Equal(t, "search", cfg.Servers[1].Name)

	services := application.Services()
	require.NotNil(t, services.Aggregator)
	require.NotNil(t, services.Server)
	assert.Equal(t, aggregator.StateUninitialized, services.Aggregator.State())
	assert.Equal(t, "http://127.0.0.1:9123/mcp", services.Server.GetEndpoint())
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	dir := writeConfig(t, 9123, "http://127.0.0.1:1/mcp", "  conflictPolicy: newest-wins")

	_, err := NewApplication(NewConfig(false, true, dir))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflictPolicy")
}

func TestInitializeServices_RequiresConfig(t *testing.T) {
	_, err := InitializeServices(NewConfig(false, true, t.TempDir()))
	assert.Error(t, err)
}
