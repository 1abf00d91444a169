package fswatcher

import (
	"errors"
	"fmt"
)

// Op is the raw operation bitmask carried by a Notification. The engine does
// not trust it for classification; it only decides which directories need
// to be re-examined.
type Op uint32

// Raw operations reported by a Backend.
const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

// Has reports whether o contains every bit of h.
func (o Op) Has(h Op) bool { return o&h == h }

// Notification is one raw, unnormalized notification from a Backend.
type Notification struct {
	// Name is the path of the directory child (or registered directory)
	// the notification refers to.
	Name string

	// Op is the raw operation.
	Op Op
}

// Backend is the low-level notification primitive. It watches single
// directories, non-recursively, and reports activity on their direct
// children and on themselves.
type Backend interface {
	// Add starts reporting activity for dir.
	Add(dir string) error

	// Remove stops reporting activity for dir. Removing a directory the
	// backend no longer watches is not an error.
	Remove(dir string) error

	// Notifications returns the raw notification stream.
	Notifications() <-chan Notification

	// Errors returns asynchronous backend failures. ErrOverflow signals that
	// notifications were lost; a *DirError that one directory is no longer
	// monitored.
	Errors() <-chan error

	// Close releases every registration and closes both channels.
	Close() error
}

// BackendFactory creates a Backend.
type BackendFactory func() (Backend, error)

// ErrOverflow is reported by a Backend that dropped notifications.
var ErrOverflow = errors.New("notification queue overflow")

// DirError reports that a backend can no longer monitor a directory.
//
// The fsnotify backend never reports it: a registered directory that is
// removed or renamed arrives as a notification on the directory itself and
// is handled by re-examining it, which retires the monitor once the
// directory is gone. DirError is for backends that can lose a registration
// while the directory still exists.
type DirError struct {
	Dir string
	Err error
}

func (e *DirError) Error() string {
	return fmt.Sprintf("directory %s: %v", e.Dir, e.Err)
}

func (e *DirError) Unwrap() error { return e.Err }
