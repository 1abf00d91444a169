package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrEmptyWatchPath is returned when a watch path is blank.
	ErrEmptyWatchPath = errors.New("invalid watch path: must not be empty")

	// ErrInvalidRewatchDelay is returned when rewatch delay is <= 0.
	ErrInvalidRewatchDelay = errors.New("invalid rewatch delay: must be > 0")

	// ErrInvalidUpdateFrequency is returned when update frequency is <= 0.
	ErrInvalidUpdateFrequency = errors.New("invalid update frequency: must be > 0")

	// ErrInvalidConcurrency is returned when watch concurrency is <= 0.
	ErrInvalidConcurrency = errors.New("invalid watch concurrency: must be > 0")

	// ErrInvalidWorkers is returned when engine workers is < 0.
	ErrInvalidWorkers = errors.New("invalid engine workers: must be >= 0")

	// ErrInvalidQueueSize is returned when engine queue size is < 0.
	ErrInvalidQueueSize = errors.New("invalid engine queue size: must be >= 0")

	// ErrNoJournalPath is returned when the journal is enabled without a path.
	ErrNoJournalPath = errors.New("no journal path specified")

	// ErrInvalidRetention is returned when journal retention is <= 0.
	ErrInvalidRetention = errors.New("invalid journal retention: must be > 0")

	// ErrInvalidDisplayFormat is returned when display format is not recognized.
	ErrInvalidDisplayFormat = errors.New("invalid display format: must be table, simple, or json")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
