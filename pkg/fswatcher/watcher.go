package fswatcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/0xmhha/fswatch/pkg/logger"
)

// Watcher watches a set of pathnames and publishes their changes to
// subscriptions.
//
// A Watcher moves through STOPPED → STARTING → READY → STOPPING → STOPPED
// and can be started again after it stopped. Watch and Unwatch are only
// accepted while READY. Every method is safe for concurrent use, including
// from a goroutine reading a subscription.
type Watcher struct {
	id         string
	config     Config
	logger     logger.Logger
	diag       *diagnostics
	dispatcher *dispatcher
	gens       atomic.Uint64
	registered []prometheus.Collector

	mu      sync.RWMutex
	state   State
	current *session
	ready   chan struct{}
	closed  bool

	errMu      sync.RWMutex
	errs       chan error
	errsClosed bool
}

// New creates a stopped Watcher.
func New(cfg Config, log logger.Logger) (*Watcher, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Noop()
	}

	id := uuid.NewString()
	diag := &diagnostics{}
	w := &Watcher{
		id:         id,
		config:     cfg,
		logger:     log.Component("fswatcher").With("watcher_id", id),
		diag:       diag,
		dispatcher: newDispatcher(diag),
		ready:      make(chan struct{}),
		errs:       make(chan error, cfg.ErrorBuffer),
	}

	if cfg.Registerer != nil {
		if err := w.registerMetrics(cfg.Registerer); err != nil {
			return nil, err
		}
	}

	return w, nil
}

// ID returns the watcher instance identifier.
func (w *Watcher) ID() string {
	return w.id
}

// Start brings the watcher to READY. It returns ErrAlreadyRunning unless
// the watcher is stopped, and an error wrapping ErrLowLevelFailure when the
// backend cannot be created.
func (w *Watcher) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.state != StateStopped {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.state = StateStarting
	w.mu.Unlock()

	s, err := w.newSession()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.state = StateStopped
		w.diag.lowLevelErrors.Add(1)
		w.logger.Error("failed to start watcher", "error", err)
		return fmt.Errorf("%w: %v", ErrLowLevelFailure, err)
	}
	if w.closed {
		_ = s.close()
		w.state = StateStopped
		return ErrClosed
	}

	w.current = s
	w.state = StateReady
	close(w.ready)
	w.logger.Info("watcher started", "workers", w.config.Workers)
	return nil
}

func (w *Watcher) newSession() (*session, error) {
	backend, err := w.config.Backend()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		ctx:        ctx,
		cancel:     cancel,
		backend:    backend,
		pool:       newPool(backend),
		registry:   newRegistry(func() uint64 { return w.gens.Add(1) }),
		dispatcher: w.dispatcher,
		epoch:      w.dispatcher.currentEpoch(),
		diag:       w.diag,
		log:        w.logger,
		report:     w.reportError,
		shards:     make([]chan task, w.config.Workers),
	}
	for i := range s.shards {
		s.shards[i] = make(chan task, w.config.QueueSize)
	}

	s.start()
	return s, nil
}

// Stop tears the watcher down and returns it to STOPPED. Every open
// subscription is closed before the low-level resources are released; once
// Stop returns no further event is delivered. Stop returns ErrNotRunning
// unless the watcher is ready.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.state != StateReady {
		w.mu.Unlock()
		return ErrNotRunning
	}
	w.state = StateStopping
	s := w.current
	w.current = nil
	w.mu.Unlock()

	s.stopping.Store(true)
	w.dispatcher.closeAll()
	if err := s.close(); err != nil {
		w.logger.Warn("failed to close notification backend", "error", err)
	}

	w.mu.Lock()
	w.state = StateStopped
	w.ready = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("watcher stopped")
	return nil
}

// Close stops the watcher if it is running, closes every subscription and
// the Errors channel, and unregisters the metrics. A closed watcher cannot
// be started again. Close is idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	running := w.state == StateReady
	w.mu.Unlock()

	if running {
		_ = w.Stop()
	}
	w.dispatcher.closeAll()

	w.errMu.Lock()
	w.errsClosed = true
	close(w.errs)
	w.errMu.Unlock()

	w.unregisterMetrics()
	return nil
}

// Ready returns a channel closed once the watcher reaches READY. A new
// channel is handed out after each Stop.
func (w *Watcher) Ready() <-chan struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

// State returns the lifecycle state.
func (w *Watcher) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Errors returns asynchronous failures: watch entries dropped after a
// backend failure (as *PathError wrapping ErrLowLevelFailure) and backend
// errors not tied to one path. Errors are dropped when nobody reads.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Watch starts watching path, which need not exist. When Watch returns nil
// every later change of path is published. Watching a path that is already
// watched succeeds without side effects.
//
// Watch returns ErrNotRunning unless the watcher is ready, an error wrapping
// ErrInvalidPath for unusable paths, and an error wrapping
// ErrLowLevelFailure when the backend rejects the registration; in that
// case nothing is left behind.
func (w *Watcher) Watch(ctx context.Context, path string) error {
	s, err := w.session()
	if err != nil {
		return err
	}

	abs, err := canonical(path)
	if err != nil {
		return err
	}

	err = s.watch(ctx, abs)
	if s.stopping.Load() {
		return ErrNotRunning
	}
	return err
}

// Unwatch stops watching path. When Unwatch returns no event for path is
// delivered, including events already queued. Unwatching a path that is not
// watched succeeds.
func (w *Watcher) Unwatch(ctx context.Context, path string) error {
	s, err := w.session()
	if err != nil {
		return err
	}

	abs, err := canonical(path)
	if err != nil {
		return nil
	}

	err = s.unwatch(ctx, abs)
	if s.stopping.Load() {
		return ErrNotRunning
	}
	return err
}

// Paths returns the watched paths in lexical order.
func (w *Watcher) Paths() []string {
	w.mu.RLock()
	s := w.current
	w.mu.RUnlock()
	if s == nil {
		return nil
	}

	paths := make([]string, 0, s.registry.size())
	s.registry.entries.Range(func(path string, _ *entry) bool {
		paths = append(paths, path)
		return true
	})
	sort.Strings(paths)
	return paths
}

// Subscribe opens a subscription receiving events that carry one of the
// given changes, or every event when none is given. Subscriptions may be
// opened in any state; they are closed by Stop.
func (w *Watcher) Subscribe(changes ...Change) *Subscription {
	sub := w.dispatcher.subscribe(maskOf(changes))

	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		sub.Close()
	}
	return sub
}

// Status returns a snapshot of the watcher.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	state, s := w.state, w.current
	w.mu.RUnlock()

	st := Status{
		ID:            w.id,
		State:         state,
		Subscriptions: w.dispatcher.count(),
		Diagnostics:   w.diag.snapshot(),
	}
	if s != nil {
		st.Monitors = s.pool.size()
		st.Entries = s.registry.size()
	}
	return st
}

// session returns the running session or ErrNotRunning.
func (w *Watcher) session() (*session, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.state != StateReady || w.current == nil {
		return nil, ErrNotRunning
	}
	return w.current, nil
}

// reportError sends err to the Errors channel without blocking.
func (w *Watcher) reportError(err error) {
	w.errMu.RLock()
	defer w.errMu.RUnlock()

	if w.errsClosed {
		return
	}
	select {
	case w.errs <- err:
	default:
		w.logger.Warn("error channel full, dropping error", "error", err)
	}
}
