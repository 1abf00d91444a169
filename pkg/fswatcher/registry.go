package fswatcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// maxPlaceAttempts bounds how often placement chases a directory tree that
// keeps changing underneath it.
const maxPlaceAttempts = 64

// entry is the registry record of one watched path.
type entry struct {
	path      string
	parentDir string
	gen       uint64

	// ready is closed once the Watch call that created the entry finished;
	// err holds its result.
	ready chan struct{}
	err   error

	mu             sync.Mutex
	last           Observation
	seeded         bool
	pendingUnwatch bool
	monitor        *dirMonitor
}

// registry maps watched paths to entries.
type registry struct {
	entries *xsync.MapOf[string, *entry]
	nextGen func() uint64
}

func newRegistry(nextGen func() uint64) *registry {
	return &registry{
		entries: xsync.NewMapOf[string, *entry](),
		nextGen: nextGen,
	}
}

// loadOrCreate returns the entry of path, creating it when absent.
func (r *registry) loadOrCreate(path string) (*entry, bool) {
	return r.entries.LoadOrCompute(path, func() *entry {
		return &entry{
			path:      path,
			parentDir: filepath.Dir(path),
			gen:       r.nextGen(),
			ready:     make(chan struct{}),
		}
	})
}

func (r *registry) load(path string) (*entry, bool) {
	return r.entries.Load(path)
}

// remove deletes path only while it still maps to e.
func (r *registry) remove(e *entry) {
	r.entries.Compute(e.path, func(old *entry, loaded bool) (*entry, bool) {
		if loaded && old == e {
			return nil, true
		}
		return old, !loaded
	})
}

func (r *registry) size() int {
	return r.entries.Size()
}

func (r *registry) clear() {
	r.entries.Clear()
}

// watch registers path: the entry is placed on a directory monitor before
// its existence is sampled, so no change can fall between the two.
func (s *session) watch(ctx context.Context, path string) error {
	e, loaded := s.registry.loadOrCreate(path)
	if loaded {
		select {
		case <-e.ready:
			return e.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.err = s.seed(e)
	if e.err != nil {
		s.registry.remove(e)
	}
	close(e.ready)
	return e.err
}

// seed places e and records its initial observation.
func (s *session) seed(e *entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.place(e); err != nil {
		s.detach(e)
		s.diag.lowLevelErrors.Add(1)
		return &PathError{Op: "watch", Path: e.path, Err: fmt.Errorf("%w: %v", ErrLowLevelFailure, err)}
	}

	obs, err := observe(e.path)
	if err != nil {
		s.detach(e)
		s.diag.lowLevelErrors.Add(1)
		return &PathError{Op: "watch", Path: e.path, Err: fmt.Errorf("%w: %v", ErrLowLevelFailure, err)}
	}

	e.last = obs
	e.seeded = true
	s.log.Debug("watch added", "path", e.path, "existence", obs.Existence.String(), "dir", e.monitor.dir)
	return nil
}

// unwatch removes path. Once it returns no event of the entry will be
// delivered.
func (s *session) unwatch(ctx context.Context, path string) error {
	e, ok := s.registry.load(path)
	if !ok {
		return nil
	}
	select {
	case <-e.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.mu.Lock()
	if e.pendingUnwatch || !e.seeded {
		e.mu.Unlock()
		return nil
	}
	e.pendingUnwatch = true
	s.registry.remove(e)
	s.detach(e)
	e.mu.Unlock()

	s.dispatcher.purge(e.gen)
	s.log.Debug("watch removed", "path", path)
	return nil
}

// place moves e onto the monitor of its closest existing ancestor directory.
// The new monitor is acquired before the old one is released, and placement
// repeats until the closest directory is stable. Caller holds e.mu.
func (s *session) place(e *entry) error {
	for attempt := 0; attempt < maxPlaceAttempts; attempt++ {
		dir := nearestDir(e.parentDir)
		if e.monitor != nil && e.monitor.dir == dir && !s.pool.isRetired(e.monitor) {
			return nil
		}

		m, err := s.pool.acquire(dir, e)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
				continue
			}
			return err
		}

		if old := e.monitor; old != nil {
			if err := s.pool.release(old, e); err != nil {
				s.reportError(&DirError{Dir: old.dir, Err: err})
			}
			s.diag.rehomes.Add(1)
			s.log.Debug("watch moved", "path", e.path, "from", old.dir, "to", dir)
		}
		e.monitor = m
	}
	return fmt.Errorf("directory tree of %s kept changing", e.path)
}

// detach releases the monitor of e. Caller holds e.mu.
func (s *session) detach(e *entry) {
	m := e.monitor
	if m == nil {
		return
	}
	e.monitor = nil
	if err := s.pool.release(m, e); err != nil {
		s.diag.lowLevelErrors.Add(1)
		s.log.Warn("failed to remove directory registration", "dir", m.dir, "error", err)
	}
}

// reconcile re-examines e and publishes the resulting change, if any.
func (s *session) reconcile(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.seeded || e.pendingUnwatch {
		return
	}

	if err := s.place(e); err != nil {
		s.dewatch(e, err)
		return
	}

	obs, err := observe(e.path)
	if err != nil {
		s.log.Warn("failed to examine watched path", "path", e.path, "error", err)
		return
	}

	change, ok := classify(e.last, obs)
	e.last = obs
	if !ok {
		return
	}

	s.dispatcher.publish(s.epoch, Event{
		Path:      e.path,
		Changes:   []Change{change},
		Timestamp: time.Now(),
		gen:       e.gen,
	})
}

// dewatch drops e after its monitor failed. Events already published stay
// deliverable. Caller holds e.mu.
func (s *session) dewatch(e *entry, cause error) {
	e.pendingUnwatch = true
	s.registry.remove(e)
	s.detach(e)
	s.diag.lowLevelErrors.Add(1)

	err := &PathError{Op: "watch", Path: e.path, Err: fmt.Errorf("%w: %v", ErrLowLevelFailure, cause)}
	s.log.Error("watch dropped", "path", e.path, "error", cause)
	s.reportError(err)
}
