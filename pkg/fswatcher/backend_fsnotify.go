package fswatcher

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyBuffer is the kernel-facing event buffer. It absorbs bursts while
// the router is busy.
const fsnotifyBuffer = 4096

// fsnotifyBackend adapts fsnotify to the Backend interface.
type fsnotifyBackend struct {
	fsw           *fsnotify.Watcher
	notifications chan Notification
	errors        chan error
	done          chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// NewFsnotifyBackend creates a Backend on top of fsnotify (inotify, kqueue,
// ReadDirectoryChangesW or FEN depending on the platform).
func NewFsnotifyBackend() (Backend, error) {
	fsw, err := fsnotify.NewBufferedWatcher(fsnotifyBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	b := &fsnotifyBackend{
		fsw:           fsw,
		notifications: make(chan Notification),
		errors:        make(chan error, 16),
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.forward()

	return b, nil
}

// Add implements Backend.Add.
func (b *fsnotifyBackend) Add(dir string) error {
	return b.fsw.Add(dir)
}

// Remove implements Backend.Remove.
func (b *fsnotifyBackend) Remove(dir string) error {
	err := b.fsw.Remove(dir)
	if errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return nil
	}
	return err
}

// Notifications implements Backend.Notifications.
func (b *fsnotifyBackend) Notifications() <-chan Notification {
	return b.notifications
}

// Errors implements Backend.Errors.
func (b *fsnotifyBackend) Errors() <-chan error {
	return b.errors
}

// Close implements Backend.Close.
func (b *fsnotifyBackend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.fsw.Close()
		b.wg.Wait()
		close(b.notifications)
		close(b.errors)
	})
	return err
}

// forward translates fsnotify events until the watcher is closed.
func (b *fsnotifyBackend) forward() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return

		case event, ok := <-b.fsw.Events:
			if !ok {
				return
			}
			n := Notification{Name: event.Name, Op: translateOp(event.Op)}
			select {
			case b.notifications <- n:
			case <-b.done:
				return
			}

		case err, ok := <-b.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				err = fmt.Errorf("%w: %v", ErrOverflow, err)
			}
			select {
			case b.errors <- err:
			case <-b.done:
				return
			}
		}
	}
}

func translateOp(op fsnotify.Op) Op {
	var out Op
	if op.Has(fsnotify.Create) {
		out |= OpCreate
	}
	if op.Has(fsnotify.Write) {
		out |= OpWrite
	}
	if op.Has(fsnotify.Remove) {
		out |= OpRemove
	}
	if op.Has(fsnotify.Rename) {
		out |= OpRename
	}
	if op.Has(fsnotify.Chmod) {
		out |= OpChmod
	}
	return out
}
