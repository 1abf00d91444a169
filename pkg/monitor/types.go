// Package monitor runs a watcher over a fixed set of paths on behalf of a
// long-running host: it records every event in a journal, keeps running
// totals, re-establishes watches that the engine dropped after a low-level
// failure and publishes periodic updates.
package monitor

import (
	"time"

	"github.com/0xmhha/fswatch/pkg/fswatcher"
)

// Config holds the configuration for the monitor.
type Config struct {
	// Paths to watch. Paths need not exist.
	Paths []string

	// Concurrency bounds the number of Watch calls issued at once.
	// Default: 64.
	Concurrency int

	// RewatchDelay is the wait before re-watching a path dropped by the
	// engine. Default: 5s.
	RewatchDelay time.Duration

	// RefreshInterval is the interval between updates.
	// Default: 10s.
	RefreshInterval time.Duration

	// Retention is how long journal records are kept. Zero keeps them
	// forever.
	Retention time.Duration

	// PruneInterval is the interval between journal prunes.
	// Default: 1h.
	PruneInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 64
	}
	if c.RewatchDelay <= 0 {
		c.RewatchDelay = 5 * time.Second
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 10 * time.Second
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = time.Hour
	}
	return c
}

// Totals counts events seen since the monitor was created.
type Totals struct {
	Events        uint64 `json:"events"`
	Created       uint64 `json:"created"`
	Modified      uint64 `json:"modified"`
	Deleted       uint64 `json:"deleted"`
	Rewatches     uint64 `json:"rewatches"`
	JournalErrors uint64 `json:"journal_errors"`
}

// Sub returns t minus o, field by field.
func (t Totals) Sub(o Totals) Totals {
	return Totals{
		Events:        t.Events - o.Events,
		Created:       t.Created - o.Created,
		Modified:      t.Modified - o.Modified,
		Deleted:       t.Deleted - o.Deleted,
		Rewatches:     t.Rewatches - o.Rewatches,
		JournalErrors: t.JournalErrors - o.JournalErrors,
	}
}

// Update represents a periodic monitoring update.
type Update struct {
	// Timestamp of the update
	Timestamp time.Time `json:"timestamp"`

	// Totals since the monitor was created
	Totals Totals `json:"totals"`

	// Delta contains the change since the last update
	Delta Totals `json:"delta"`

	// Pending is the number of events queued for the monitor and not
	// yet recorded
	Pending int `json:"pending"`

	// Status of the watcher
	Status fswatcher.Status `json:"status"`
}
