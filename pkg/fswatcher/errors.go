package fswatcher

import (
	"errors"
	"strconv"
)

// Common errors returned by the watcher.
var (
	// ErrAlreadyRunning is returned when Start is called on a watcher that is
	// not stopped.
	ErrAlreadyRunning = errors.New("watcher already running")

	// ErrNotRunning is returned when Stop, Watch or Unwatch is called on a
	// watcher that is not ready.
	ErrNotRunning = errors.New("watcher not running")

	// ErrClosed is returned when using a closed watcher.
	ErrClosed = errors.New("watcher is closed")

	// ErrInvalidPath is returned when a pathname cannot be watched.
	ErrInvalidPath = errors.New("invalid watch path")

	// ErrLowLevelFailure is returned when the notification backend fails.
	ErrLowLevelFailure = errors.New("low-level notification failure")
)

// IsMisuse reports whether err signals a lifecycle misuse by the caller
// (starting twice, stopping or watching while not running, using a closed
// watcher) rather than an environmental condition.
func IsMisuse(err error) bool {
	return errors.Is(err, ErrAlreadyRunning) ||
		errors.Is(err, ErrNotRunning) ||
		errors.Is(err, ErrClosed)
}

// PathError records a failed operation on one watched path.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return e.Op + " " + strconv.Quote(e.Path) + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error { return e.Err }
