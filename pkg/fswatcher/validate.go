package fswatcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// maxPathLen mirrors PATH_MAX on Linux.
	maxPathLen = 4096
	// maxNameLen mirrors NAME_MAX.
	maxNameLen = 255
)

// Validate reports whether path can be handed to the notification backend.
// It returns an error wrapping ErrInvalidPath for empty paths, paths holding
// a NUL byte, a newline or a carriage return, and paths exceeding the
// platform length limits.
func Validate(path string) error {
	switch {
	case path == "":
		return invalidPath(path, "empty path")
	case strings.IndexByte(path, 0) >= 0:
		return invalidPath(path, "contains NUL byte")
	case strings.ContainsAny(path, "\n\r"):
		return invalidPath(path, "contains newline")
	case len(path) > maxPathLen:
		return invalidPath(path, "path too long")
	}

	for _, name := range strings.Split(path, string(os.PathSeparator)) {
		if len(name) > maxNameLen {
			return invalidPath(path, "path component too long")
		}
	}

	return nil
}

// canonical validates path and returns its cleaned absolute form.
func canonical(path string) (string, error) {
	if err := Validate(path); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &PathError{Op: "watch", Path: path, Err: fmt.Errorf("%w: %v", ErrInvalidPath, err)}
	}
	return abs, nil
}

func invalidPath(path, reason string) error {
	return &PathError{Op: "watch", Path: path, Err: fmt.Errorf("%w: %s", ErrInvalidPath, reason)}
}
