package journal

import "errors"

// Common errors returned by the journal.
var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidRecord is returned when a record lacks a path or changes.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidWatcherID is returned when a watcher id is not a UUID.
	ErrInvalidWatcherID = errors.New("invalid watcher id")
)
