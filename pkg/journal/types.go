// Package journal keeps a persistent, ordered log of watch events.
//
// Records are stored in BoltDB: one bucket holds the records keyed by a
// monotonically increasing sequence number, a second one indexes the latest
// record of every path.
//
// Example usage:
//
//	j, err := journal.Open(journal.Config{
//	    Path: "~/.config/fswatch/journal.db",
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer j.Close()
//
//	rec, err := j.Append(journal.FromEvent(event, w.ID()))
package journal

import (
	"time"

	"github.com/0xmhha/fswatch/pkg/fswatcher"
)

// Record is one journaled event.
type Record struct {
	// Seq is the journal sequence number, assigned by Append.
	Seq uint64 `json:"seq"`

	// WatcherID is the id of the watcher that observed the event.
	WatcherID string `json:"watcher_id,omitempty"`

	// Path is the watched path.
	Path string `json:"path"`

	// Changes are the reported changes.
	Changes []fswatcher.Change `json:"changes"`

	// Timestamp is when the change was observed.
	Timestamp time.Time `json:"timestamp"`
}

// FromEvent converts an event into an unsequenced record.
func FromEvent(ev fswatcher.Event, watcherID string) Record {
	return Record{
		WatcherID: watcherID,
		Path:      ev.Path,
		Changes:   ev.Changes,
		Timestamp: ev.Timestamp,
	}
}

// Has reports whether the record carries change c.
func (r Record) Has(c fswatcher.Change) bool {
	for _, got := range r.Changes {
		if got == c {
			return true
		}
	}
	return false
}

// Query selects records.
type Query struct {
	// Path restricts results to one path.
	Path string

	// Since excludes records observed before it.
	Since time.Time

	// Change restricts results to records carrying it (0 = any).
	Change fswatcher.Change

	// Limit keeps only the most recent Limit matches (0 = all).
	Limit int
}

func (q Query) matches(r Record) bool {
	if q.Path != "" && r.Path != q.Path {
		return false
	}
	if !q.Since.IsZero() && r.Timestamp.Before(q.Since) {
		return false
	}
	if q.Change != 0 && !r.Has(q.Change) {
		return false
	}
	return true
}

// Stats summarizes the journal.
type Stats struct {
	Records int `json:"records"`
	Paths   int `json:"paths"`
}

// Journal stores and queries records.
type Journal interface {
	// Append stores rec and returns it with its sequence number set.
	//
	// Returns error if:
	//   - Path is empty or Changes is empty
	//   - WatcherID is set but is not a UUID
	//   - Database operation fails
	Append(rec Record) (Record, error)

	// List returns matching records in sequence order.
	List(q Query) ([]Record, error)

	// Last returns the latest record of path, or ErrNotFound.
	Last(path string) (Record, error)

	// Prune deletes records observed before cutoff and returns how many
	// were deleted.
	Prune(cutoff time.Time) (int, error)

	// Stats returns record and path counts.
	Stats() (Stats, error)

	// Close closes the journal.
	Close() error
}

// Config contains journal configuration.
type Config struct {
	// Path is the database file; a leading ~ is expanded.
	Path string

	// Timeout bounds waiting for the file lock. Default: 1s.
	Timeout time.Duration

	// ReadOnly opens the database without write access.
	ReadOnly bool
}
