//go:build !unix

package fswatcher

import "io/fs"

// fileIdentity is unavailable; size and modification time still apply.
func fileIdentity(fs.FileInfo) (dev, ino uint64) {
	return 0, 0
}
