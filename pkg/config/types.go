// Package config provides configuration management for fswatch.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Watching: %v\n", cfg.Watch.Paths)
package config

import (
	"strings"
	"time"

	"github.com/0xmhha/fswatch/pkg/logger"
)

// Config represents the complete application configuration.
//
// Invariants:
// - Watch paths must not be empty strings
// - RewatchDelay and UpdateFrequency must be > 0
// - Concurrency must be > 0
// - Engine workers and queue size must be >= 0 (0 selects the engine default)
// - Journal retention must be > 0.
type Config struct {
	// Paths to watch and watch behaviour
	Watch WatchConfig `yaml:"watch"`

	// Notification engine tuning
	Engine EngineConfig `yaml:"engine"`

	// Event journal settings
	Journal JournalConfig `yaml:"journal"`

	// Display settings
	Display DisplayConfig `yaml:"display"`

	// Metrics endpoint settings
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging settings
	Logging logger.Config `yaml:"logging"`
}

// WatchConfig contains the watched paths and how they are maintained.
type WatchConfig struct {
	// Pathnames to watch; they need not exist
	Paths []string `yaml:"paths"`

	// Delay before re-watching a path dropped after a backend failure
	RewatchDelay time.Duration `yaml:"rewatch_delay"`

	// Interval of monitor status updates
	UpdateFrequency time.Duration `yaml:"update_frequency"`

	// Number of paths registered concurrently at startup
	Concurrency int `yaml:"concurrency"`
}

// EngineConfig contains notification engine settings.
type EngineConfig struct {
	// Number of classification workers (0 = number of CPUs)
	Workers int `yaml:"workers"`

	// Per-worker notification queue length (0 = engine default)
	QueueSize int `yaml:"queue_size"`
}

// JournalConfig contains event journal settings.
type JournalConfig struct {
	// Disable recording events
	Disabled bool `yaml:"disabled"`

	// Path to the BoltDB journal file
	Path string `yaml:"path"`

	// How long to keep journal records
	Retention time.Duration `yaml:"retention"`
}

// DisplayConfig contains display-related settings.
type DisplayConfig struct {
	// Output format (table, simple, json); empty picks by terminal
	Format string `yaml:"format"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	// Listen address of the /metrics endpoint; empty disables it
	Address string `yaml:"address"`
}

// Validate checks if the configuration satisfies all invariants.
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	for _, p := range c.Watch.Paths {
		if strings.TrimSpace(p) == "" {
			return ErrEmptyWatchPath
		}
	}
	if c.Watch.RewatchDelay <= 0 {
		return ErrInvalidRewatchDelay
	}
	if c.Watch.UpdateFrequency <= 0 {
		return ErrInvalidUpdateFrequency
	}
	if c.Watch.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.Engine.Workers < 0 {
		return ErrInvalidWorkers
	}
	if c.Engine.QueueSize < 0 {
		return ErrInvalidQueueSize
	}

	if !c.Journal.Disabled {
		if c.Journal.Path == "" {
			return ErrNoJournalPath
		}
		if c.Journal.Retention <= 0 {
			return ErrInvalidRetention
		}
	}

	switch c.Display.Format {
	case "", "table", "simple", "json":
	default:
		return ErrInvalidDisplayFormat
	}

	if !logger.ValidLevel(c.Logging.Level) {
		return ErrInvalidLogLevel
	}
	if !logger.ValidFormat(c.Logging.Format) {
		return ErrInvalidLogFormat
	}

	return nil
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Watch: WatchConfig{
			RewatchDelay:    5 * time.Second,
			UpdateFrequency: 10 * time.Second,
			Concurrency:     64,
		},
		Journal: JournalConfig{
			Path:      defaultJournalPath(),
			Retention: 168 * time.Hour, // 7 days
		},
		Logging: logger.Config{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}
