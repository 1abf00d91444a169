// Package display provides output formatting for watch events, watcher
// status and journal history.
//
// It supports multiple output formats (table, JSON, simple text).
package display

import (
	"io"

	"github.com/0xmhha/fswatch/pkg/fswatcher"
	"github.com/0xmhha/fswatch/pkg/journal"
	"github.com/0xmhha/fswatch/pkg/monitor"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays output in formatted tables.
	FormatTable Format = "table"

	// FormatJSON displays output as JSON, one document per call.
	FormatJSON Format = "json"

	// FormatSimple displays output in simple text format.
	FormatSimple Format = "simple"
)

// Formatter formats and displays watcher output.
type Formatter interface {
	// FormatEvent formats a single event.
	//
	// Parameters:
	//   - w: Output writer
	//   - ev: Event to format
	//
	// Returns error if formatting fails.
	FormatEvent(w io.Writer, ev fswatcher.Event) error

	// FormatStatus formats a watcher status snapshot.
	FormatStatus(w io.Writer, st fswatcher.Status) error

	// FormatUpdate formats a periodic monitor update.
	FormatUpdate(w io.Writer, u monitor.Update) error

	// FormatHistory formats journal records.
	//
	// Parameters:
	//   - w: Output writer
	//   - records: Records in sequence order
	//
	// Returns error if formatting fails.
	FormatHistory(w io.Writer, records []journal.Record) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// Compact enables compact output (less whitespace).
	// Default: false.
	Compact bool
}
