package fswatcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/0xmhha/fswatch/pkg/logger"
)

type taskKind uint8

const (
	// taskChild re-examines the entries reached through one directory child.
	taskChild taskKind = iota
	// taskSelf handles activity on a monitored directory itself.
	taskSelf
	// taskRescan re-examines every entry of a directory.
	taskRescan
	// taskFail drops every entry of a directory the backend gave up on.
	taskFail
)

type task struct {
	kind taskKind
	dir  string
	name string
	err  error
}

// session holds everything that lives from one Start to the next Stop.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc

	backend    Backend
	pool       *pool
	registry   *registry
	dispatcher *dispatcher
	epoch      uint64
	diag       *diagnostics
	log        logger.Logger
	report     func(error)

	shards   []chan task
	wg       sync.WaitGroup
	stopping atomic.Bool
}

// start launches the router and one worker per shard.
func (s *session) start() {
	s.wg.Add(1 + len(s.shards))
	go s.route()
	for _, ch := range s.shards {
		go s.work(ch)
	}
}

// close tears the session down. Entries and monitors are discarded without
// deregistering them one by one; closing the backend releases them all.
func (s *session) close() error {
	s.stopping.Store(true)
	s.cancel()
	err := s.backend.Close()
	s.wg.Wait()

	s.registry.clear()
	s.pool.mu.Lock()
	s.pool.monitors = make(map[string]*dirMonitor)
	s.pool.mu.Unlock()
	return err
}

func (s *session) reportError(err error) {
	if s.stopping.Load() {
		return
	}
	s.report(err)
}

// route reads the backend and hands every notification to the worker
// owning its directory.
func (s *session) route() {
	defer s.wg.Done()

	notifications := s.backend.Notifications()
	errs := s.backend.Errors()

	for {
		select {
		case <-s.ctx.Done():
			return

		case n, ok := <-notifications:
			if !ok {
				return
			}
			s.diag.rawNotifications.Add(1)
			s.dispatch(task{kind: taskChild, dir: filepath.Dir(n.Name), name: filepath.Base(n.Name)})
			if n.Op&(OpRemove|OpRename) != 0 {
				s.dispatch(task{kind: taskSelf, dir: n.Name})
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.handleBackendError(err)
		}
	}
}

func (s *session) handleBackendError(err error) {
	var dirErr *DirError
	switch {
	case errors.Is(err, ErrOverflow):
		s.diag.overflows.Add(1)
		s.log.Warn("notifications lost, rescanning watched directories", "error", err)
		for _, dir := range s.pool.dirs() {
			s.dispatch(task{kind: taskRescan, dir: dir})
		}

	case errors.As(err, &dirErr):
		s.dispatch(task{kind: taskFail, dir: dirErr.Dir, err: dirErr.Err})

	default:
		s.diag.lowLevelErrors.Add(1)
		s.log.Error("notification backend error", "error", err)
		s.reportError(fmt.Errorf("%w: %v", ErrLowLevelFailure, err))
	}
}

// dispatch queues t on the shard of its directory, so that notifications of
// one directory are handled in order.
func (s *session) dispatch(t task) {
	ch := s.shards[xxhash.Sum64String(t.dir)%uint64(len(s.shards))]
	select {
	case ch <- t:
	case <-s.ctx.Done():
	}
}

func (s *session) work(ch <-chan task) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case t := <-ch:
			s.handle(t)
		}
	}
}

func (s *session) handle(t task) {
	m := s.pool.get(t.dir)
	if m == nil {
		return
	}

	switch t.kind {
	case taskChild:
		for _, e := range m.children(t.name) {
			s.reconcile(e)
		}

	case taskSelf:
		if m.vanished() {
			s.pool.retire(m)
			s.log.Debug("watched directory vanished", "dir", m.dir)
		}
		for _, e := range m.all() {
			s.reconcile(e)
		}

	case taskRescan:
		for _, e := range m.all() {
			s.reconcile(e)
		}

	case taskFail:
		s.pool.retire(m)
		for _, e := range m.all() {
			e.mu.Lock()
			if !e.pendingUnwatch {
				s.dewatch(e, t.err)
			}
			e.mu.Unlock()
		}
	}
}
