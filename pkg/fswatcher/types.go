// Package fswatcher reports creation, modification and deletion of an
// arbitrary, changing set of pathnames, including paths that do not exist
// yet.
//
// The engine holds one low-level notification registration per directory
// that has at least one watched path beneath it, however many paths in that
// directory are watched. Every raw notification is turned into a semantic
// event by comparing a fresh stat of each affected path against the cached
// one, so events for a single path are always ordered
// create → change* → delete.
//
// Example usage:
//
//	w, err := fswatcher.New(fswatcher.Config{}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	sub := w.Subscribe() // every event; Subscribe(fswatcher.Created) for creates only
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := w.Watch(ctx, "/etc/zones/web01.xml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range sub.C() {
//	    fmt.Printf("%s %v\n", event.Path, event.Changes)
//	}
package fswatcher

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Change is one kind of change reported for a watched path.
type Change uint8

// Changes reported by the engine.
const (
	Created  Change = iota + 1 // Path came into existence
	Modified                   // Size, modification time or identity changed
	Deleted                    // Path ceased to exist
)

// String returns the change tag.
func (c Change) String() string {
	switch c {
	case Created:
		return "CREATED"
	case Modified:
		return "MODIFIED"
	case Deleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Change) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Change) UnmarshalText(text []byte) error {
	parsed, err := ParseChange(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseChange parses a change tag or one of the short names create, change
// and delete.
func ParseChange(s string) (Change, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created", "create":
		return Created, nil
	case "modified", "change", "modify":
		return Modified, nil
	case "deleted", "delete":
		return Deleted, nil
	default:
		return 0, fmt.Errorf("unknown change %q", s)
	}
}

// changeMask is a set of changes.
type changeMask uint8

func maskOf(changes []Change) changeMask {
	if len(changes) == 0 {
		return changeMask(1<<Created | 1<<Modified | 1<<Deleted)
	}
	var m changeMask
	for _, c := range changes {
		m |= 1 << c
	}
	return m
}

func (m changeMask) matches(changes []Change) bool {
	for _, c := range changes {
		if m&(1<<c) != 0 {
			return true
		}
	}
	return false
}

// Event is a normalized change of one watched path.
type Event struct {
	// Path is the watched pathname in the cleaned absolute form Watch
	// registered it under.
	Path string `json:"path"`

	// Changes holds the changes observed, in order.
	Changes []Change `json:"changes"`

	// Timestamp is when the change was observed.
	Timestamp time.Time `json:"timestamp"`

	// gen identifies the watch entry that produced the event.
	gen uint64
}

// Has reports whether the event carries change c.
func (e Event) Has(c Change) bool {
	for _, got := range e.Changes {
		if got == c {
			return true
		}
	}
	return false
}

// State is the lifecycle state of a Watcher.
type State int32

// Watcher lifecycle states.
const (
	StateStopped State = iota
	StateStarting
	StateReady
	StateStopping
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateReady:
		return "READY"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Existence tells whether a watched path was present when last observed.
type Existence uint8

// Existence states of a watch entry.
const (
	Missing Existence = iota
	Present
)

// String returns a human-readable existence name.
func (e Existence) String() string {
	if e == Present {
		return "PRESENT"
	}
	return "MISSING"
}

// Config contains watcher configuration.
type Config struct {
	// Workers is the number of goroutines classifying raw notifications.
	// Notifications of one directory are always handled by the same worker.
	// Default: runtime.NumCPU().
	Workers int

	// QueueSize is the per-worker notification queue length.
	// Default: 1024.
	QueueSize int

	// ErrorBuffer is the capacity of the channel returned by Errors.
	// Default: 16.
	ErrorBuffer int

	// Backend creates the low-level notification primitive on every Start.
	// Default: NewFsnotifyBackend.
	Backend BackendFactory

	// Registerer receives the engine metrics. Nil disables export.
	Registerer prometheus.Registerer
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.ErrorBuffer <= 0 {
		c.ErrorBuffer = 16
	}
	if c.Backend == nil {
		c.Backend = NewFsnotifyBackend
	}
	return c
}

// Status is a point-in-time snapshot of a Watcher.
type Status struct {
	// ID identifies the watcher instance in logs and metrics.
	ID string `json:"id"`

	// State is the lifecycle state.
	State State `json:"state"`

	// Monitors is the number of open directory registrations.
	Monitors int `json:"monitors"`

	// Entries is the number of watched paths.
	Entries int `json:"entries"`

	// Subscriptions is the number of open subscriptions.
	Subscriptions int `json:"subscriptions"`

	// Diagnostics holds lifetime counters.
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Diagnostics holds engine counters accumulated over the watcher lifetime.
type Diagnostics struct {
	RawNotifications uint64 `json:"raw_notifications"`
	EventsPublished  uint64 `json:"events_published"`
	EventsDelivered  uint64 `json:"events_delivered"`
	EventsDiscarded  uint64 `json:"events_discarded"`
	Overflows        uint64 `json:"overflows"`
	LowLevelErrors   uint64 `json:"low_level_errors"`
	Rehomes          uint64 `json:"rehomes"`
}
