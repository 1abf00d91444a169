package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables read by the loader.
const (
	EnvConfig      = "FSWATCH_CONFIG"
	EnvPaths       = "FSWATCH_PATHS"
	EnvJournal     = "FSWATCH_JOURNAL"
	EnvLogLevel    = "FSWATCH_LOG_LEVEL"
	EnvMetricsAddr = "FSWATCH_METRICS_ADDR"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile loads configuration from a specific file.
	LoadFromFile(path string) (*Config, error)
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, the file named by FSWATCH_CONFIG is used, then
// ./fswatch.yaml, then ~/.config/fswatch/config.yaml.
func NewLoader(configPath string) Loader {
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	cfg := Default()

	explicit := l.configPath
	if explicit == "" {
		explicit = os.Getenv(EnvConfig)
	}

	configPath := explicit
	if configPath == "" {
		configPath = FindConfigFile()
	}

	if configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			// A file that was asked for must load; a discovered one may not exist.
			if explicit != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		} else {
			cfg = l.mergeConfigs(cfg, fileCfg)
		}
	}

	cfg = l.applyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// FindConfigFile returns the first existing config file among
// ./fswatch.yaml and ~/.config/fswatch/config.yaml, or "".
func FindConfigFile() string {
	candidates := []string{
		"./fswatch.yaml",
		DefaultConfigPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// mergeConfigs merges file configuration into default configuration.
//
// File values override defaults, but only if they are non-zero.
func (l *loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	if len(override.Watch.Paths) > 0 {
		result.Watch.Paths = override.Watch.Paths
	}
	if override.Watch.RewatchDelay > 0 {
		result.Watch.RewatchDelay = override.Watch.RewatchDelay
	}
	if override.Watch.UpdateFrequency > 0 {
		result.Watch.UpdateFrequency = override.Watch.UpdateFrequency
	}
	if override.Watch.Concurrency > 0 {
		result.Watch.Concurrency = override.Watch.Concurrency
	}

	if override.Engine.Workers > 0 {
		result.Engine.Workers = override.Engine.Workers
	}
	if override.Engine.QueueSize > 0 {
		result.Engine.QueueSize = override.Engine.QueueSize
	}

	if override.Journal.Disabled {
		result.Journal.Disabled = true
	}
	if override.Journal.Path != "" {
		result.Journal.Path = override.Journal.Path
	}
	if override.Journal.Retention > 0 {
		result.Journal.Retention = override.Journal.Retention
	}

	if override.Display.Format != "" {
		result.Display.Format = override.Display.Format
	}

	if override.Metrics.Address != "" {
		result.Metrics.Address = override.Metrics.Address
	}

	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Output != "" {
		result.Logging.Output = override.Logging.Output
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	return &result
}

// applyEnvVars applies environment variable overrides to the configuration.
//
// Supported environment variables:
//   - FSWATCH_PATHS: Comma-separated list of paths to watch
//   - FSWATCH_JOURNAL: Path to the journal file
//   - FSWATCH_LOG_LEVEL: Log level
//   - FSWATCH_METRICS_ADDR: Metrics listen address
func (l *loader) applyEnvVars(cfg *Config) *Config {
	result := *cfg

	if envPaths := os.Getenv(EnvPaths); envPaths != "" {
		paths := strings.Split(envPaths, ",")
		for i := range paths {
			paths[i] = strings.TrimSpace(paths[i])
		}
		result.Watch.Paths = paths
	}

	if journal := os.Getenv(EnvJournal); journal != "" {
		result.Journal.Path = journal
	}

	if logLevel := os.Getenv(EnvLogLevel); logLevel != "" {
		result.Logging.Level = strings.ToLower(logLevel)
	}

	if addr := os.Getenv(EnvMetricsAddr); addr != "" {
		result.Metrics.Address = addr
	}

	return &result
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	loader := NewLoader("")
//	return loader.Load()
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
//
// Equivalent to:
//
//	loader := NewLoader(path)
//	return loader.Load()
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to a YAML file.
//
// Creates parent directories if they don't exist.
// File is created with 0600 permissions (read/write for owner only).
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
