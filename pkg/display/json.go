package display

import (
	"encoding/json"
	"io"

	"github.com/0xmhha/fswatch/pkg/fswatcher"
	"github.com/0xmhha/fswatch/pkg/journal"
	"github.com/0xmhha/fswatch/pkg/monitor"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

// eventJSON is the wire form of an event.
type eventJSON struct {
	Path      string             `json:"path"`
	Changes   []fswatcher.Change `json:"changes"`
	Timestamp string             `json:"timestamp"`
}

// FormatEvent implements Formatter.FormatEvent. Events are always written
// on a single line so that the output can be streamed.
func (f *jsonFormatter) FormatEvent(w io.Writer, ev fswatcher.Event) error {
	return json.NewEncoder(w).Encode(eventJSON{
		Path:      ev.Path,
		Changes:   ev.Changes,
		Timestamp: ev.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"),
	})
}

// FormatStatus implements Formatter.FormatStatus.
func (f *jsonFormatter) FormatStatus(w io.Writer, st fswatcher.Status) error {
	return f.encode(w, st)
}

// FormatUpdate implements Formatter.FormatUpdate.
func (f *jsonFormatter) FormatUpdate(w io.Writer, u monitor.Update) error {
	return f.encode(w, u)
}

// FormatHistory implements Formatter.FormatHistory.
func (f *jsonFormatter) FormatHistory(w io.Writer, records []journal.Record) error {
	if records == nil {
		records = []journal.Record{}
	}
	return f.encode(w, records)
}

func (f *jsonFormatter) encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}

	return encoder.Encode(v)
}
