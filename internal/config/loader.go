package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"switchboard/pkg/logging"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/switchboard"
	configFileName = "config.yaml"
	// ServersDirName is the subdirectory holding one YAML file per backend.
	ServersDirName = "mcpservers"
	// EnvPrefix prefixes every environment override, e.g. SWITCHBOARD_AGGREGATOR_PORT.
	EnvPrefix = "SWITCHBOARD_"
)

// osUserHomeDir is swapped in tests.
var osUserHomeDir = os.UserHomeDir

// GetDefaultConfigPath returns ~/.config/switchboard.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadResult is the outcome of loading a configuration directory.
type LoadResult struct {
	Config SwitchboardConfig
	// FileErrors lists backend definition files that were skipped.
	FileErrors *ConfigurationErrorCollection
}

// LoadConfig loads configuration from a single directory and validates it.
// Invalid backend files are logged and skipped.
func LoadConfig(configPath string) (SwitchboardConfig, error) {
	result, err := Load(configPath)
	if err != nil {
		return SwitchboardConfig{}, err
	}
	if result.FileErrors.HasErrors() {
		logging.Warn("ConfigLoader", "Some backend files had errors:\n%s", result.FileErrors.GetDetailedReport())
	}
	return result.Config, nil
}

// Load reads config.yaml over the defaults, applies environment overrides,
// appends backends from the mcpservers/ directory and validates the result.
func Load(configPath string) (*LoadResult, error) {
	config := GetDefaultConfig()

	configFilePath := filepath.Join(configPath, configFileName)
	data, err := os.ReadFile(configFilePath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	default:
		return nil, fmt.Errorf("error reading %s: %w", configFilePath, err)
	}

	if err := ApplyEnvOverrides(&config); err != nil {
		return nil, err
	}

	definitions, fileErrors, err := LoadServerDefinitions(filepath.Join(configPath, ServersDirName))
	if err != nil {
		return nil, err
	}

	declared := make(map[string]bool, len(config.Servers))
	for _, s := range config.Servers {
		declared[s.Name] = true
	}
	for _, def := range definitions {
		if declared[def.Name] {
			fileErrors.Add(ConfigurationError{
				FileName:  def.Name,
				Category:  ServersDirName,
				ErrorType: "duplicate",
				Message:   fmt.Sprintf("backend %q is already declared", def.Name),
			})
			continue
		}
		declared[def.Name] = true
		config.Servers = append(config.Servers, def)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}

	return &LoadResult{Config: config, FileErrors: fileErrors}, nil
}

// ApplyEnvOverrides overlays SWITCHBOARD_* environment variables onto config.
func ApplyEnvOverrides(config *SwitchboardConfig) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServerDefinitions loads backend definitions from every YAML file in dir.
// A missing directory yields no definitions. Files that fail to parse or
// validate are reported in the returned collection and skipped.
func LoadServerDefinitions(dir string) ([]BackendConfig, *ConfigurationErrorCollection, error) {
	fileErrors := NewConfigurationErrorCollection()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fileErrors, nil
		}
		return nil, nil, fmt.Errorf("failed to read backend directory %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var definitions []BackendConfig
	seen := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		def, err := LoadServerDefinitionFromFile(path)
		if err != nil {
			fileErrors.Add(ConfigurationError{
				FilePath:  path,
				FileName:  entry.Name(),
				Category:  ServersDirName,
				ErrorType: "parse",
				Message:   err.Error(),
			})
			continue
		}

		if def.Name == "" {
			def.Name = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}

		if verrs := def.Validate(); verrs.HasErrors() {
			fileErrors.Add(ConfigurationError{
				FilePath:  path,
				FileName:  entry.Name(),
				Category:  ServersDirName,
				ErrorType: "validation",
				Message:   verrs.Error(),
			})
			continue
		}

		if other, dup := seen[def.Name]; dup {
			fileErrors.Add(ConfigurationError{
				FilePath:  path,
				FileName:  entry.Name(),
				Category:  ServersDirName,
				ErrorType: "duplicate",
				Message:   fmt.Sprintf("backend %q is already defined in %s", def.Name, other),
			})
			continue
		}
		seen[def.Name] = entry.Name()

		definitions = append(definitions, *def)
	}

	logging.Info("ConfigLoader", "Loaded %d backend definitions from %s", len(definitions), dir)
	return definitions, fileErrors, nil
}

// LoadServerDefinitionFromFile loads a single backend definition from a YAML file
func LoadServerDefinitionFromFile(path string) (*BackendConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var def BackendConfig
	if err := yaml.Unmarshal(content, &def); err != nil {
		return nil, fmt.Errorf("failed to parse YAML from %s: %w", path, err)
	}

	logging.Debug("ConfigLoader", "Loaded definition for %s from %s", def.Name, path)
	return &def, nil
}

// SaveServerDefinitionToFile writes a backend definition as YAML.
func SaveServerDefinitionToFile(def BackendConfig, path string) error {
	content, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	logging.Debug("ConfigLoader", "Saved definition for %s to %s", def.Name, path)
	return nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
