package fswatcher

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// Signature is the compact fingerprint used to detect modifications.
type Signature struct {
	Size    int64
	ModTime int64 // nanoseconds since the Unix epoch
	Device  uint64
	Inode   uint64
}

// Observation is the result of examining a path.
type Observation struct {
	Existence Existence
	Signature Signature
}

// observe stats path without following a final symbolic link. A path whose
// parent is missing or is not a directory is reported as Missing.
func observe(path string) (Observation, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return Observation{Existence: Missing}, nil
		}
		return Observation{}, err
	}

	dev, ino := fileIdentity(info)
	return Observation{
		Existence: Present,
		Signature: Signature{
			Size:    info.Size(),
			ModTime: info.ModTime().UnixNano(),
			Device:  dev,
			Inode:   ino,
		},
	}, nil
}

// classify derives the change between two observations of the same path.
func classify(prev, cur Observation) (Change, bool) {
	switch {
	case prev.Existence == Missing && cur.Existence == Present:
		return Created, true
	case prev.Existence == Present && cur.Existence == Missing:
		return Deleted, true
	case prev.Existence == Present && prev.Signature != cur.Signature:
		return Modified, true
	default:
		return 0, false
	}
}
