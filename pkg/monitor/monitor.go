package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0xmhha/fswatch/pkg/fswatcher"
	"github.com/0xmhha/fswatch/pkg/journal"
	"github.com/0xmhha/fswatch/pkg/logger"
)

// Monitor keeps a watcher running over the configured paths.
type Monitor struct {
	config  Config
	logger  logger.Logger
	watcher *fswatcher.Watcher
	journal journal.Journal

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	sub     *fswatcher.Subscription
	wg      sync.WaitGroup

	totals Totals
	last   Totals

	// Update channel for consumers
	updates chan Update
}

// New creates a monitor.
//
// Parameters:
//   - cfg: Monitor configuration
//   - w: Watcher driven by the monitor; the caller keeps ownership
//   - j: Journal receiving every event, or nil
//   - log: Logger instance
//
// Returns:
//   - Configured Monitor
//   - ErrNoPaths if no path is configured
func New(cfg Config, w *fswatcher.Watcher, j journal.Journal, log logger.Logger) (*Monitor, error) {
	if len(cfg.Paths) == 0 {
		return nil, ErrNoPaths
	}
	if log == nil {
		log = logger.Noop()
	}
	cfg = cfg.withDefaults()

	m := &Monitor{
		config:  cfg,
		logger:  log.With("component", "monitor"),
		watcher: w,
		journal: j,
		updates: make(chan Update, 10),
	}

	m.logger.Info("monitor created",
		"paths", len(cfg.Paths),
		"refresh_interval", cfg.RefreshInterval,
		"rewatch_delay", cfg.RewatchDelay)

	return m, nil
}

// Start starts the watcher, watches every configured path and begins
// recording events. It returns once all paths are watched; if any Watch
// fails the watcher is stopped again and the error returned.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMonitorClosed
	}
	if m.running {
		m.mu.Unlock()
		return ErrMonitorRunning
	}
	m.running = true
	m.mu.Unlock()

	if err := m.start(ctx); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return err
	}

	m.logger.Info("monitor started", "paths", len(m.config.Paths))
	return nil
}

func (m *Monitor) start(ctx context.Context) error {
	if err := m.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	sub := m.watcher.Subscribe()

	if err := m.watchAll(ctx); err != nil {
		if stopErr := m.watcher.Stop(); stopErr != nil {
			m.logger.Warn("failed to stop watcher", "error", stopErr)
		}
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.closed || !m.running {
		closed := m.closed
		m.mu.Unlock()
		cancel()
		if stopErr := m.watcher.Stop(); stopErr != nil && !errors.Is(stopErr, fswatcher.ErrNotRunning) {
			m.logger.Warn("failed to stop watcher", "error", stopErr)
		}
		if closed {
			return ErrMonitorClosed
		}
		return ErrMonitorNotRunning
	}
	m.cancel = cancel
	m.sub = sub
	m.mu.Unlock()

	m.wg.Add(3)
	go m.processEvents(sub)
	go m.processErrors(runCtx)
	go m.periodicUpdates(runCtx)

	if m.journal != nil && m.config.Retention > 0 {
		m.wg.Add(1)
		go m.periodicPrune(runCtx)
	}
	return nil
}

// watchAll watches the configured paths, at most Concurrency at a time.
func (m *Monitor) watchAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Concurrency)

	for _, path := range m.config.Paths {
		g.Go(func() error {
			if err := m.watcher.Watch(ctx, path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Stop stops the watcher and waits for the monitor goroutines.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMonitorClosed
	}
	if !m.running {
		m.mu.Unlock()
		return ErrMonitorNotRunning
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.sub = nil
	m.mu.Unlock()

	m.halt(cancel)
	m.logger.Info("monitor stopped")
	return nil
}

// halt stops the watcher and waits for the goroutines of the current run.
// A nil cancel means Start is still in progress and will tear down itself.
func (m *Monitor) halt(cancel context.CancelFunc) {
	if cancel == nil {
		return
	}
	cancel()
	if err := m.watcher.Stop(); err != nil && !errors.Is(err, fswatcher.ErrNotRunning) {
		m.logger.Warn("failed to stop watcher", "error", err)
	}
	m.wg.Wait()
}

// Stats returns the running totals.
func (m *Monitor) Stats() Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals
}

// Updates returns a channel for receiving periodic updates. It is closed
// by Close.
func (m *Monitor) Updates() <-chan Update {
	return m.updates
}

// processEvents records events until the subscription closes.
func (m *Monitor) processEvents(sub *fswatcher.Subscription) {
	defer m.wg.Done()

	for ev := range sub.C() {
		m.record(ev)
	}
}

func (m *Monitor) record(ev fswatcher.Event) {
	m.logger.Debug("path changed", "path", ev.Path, "changes", ev.Changes)

	var journalErr bool
	if m.journal != nil {
		if _, err := m.journal.Append(journal.FromEvent(ev, m.watcher.ID())); err != nil {
			m.logger.Error("failed to journal event", "path", ev.Path, "error", err)
			journalErr = true
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals.Events++
	for _, c := range ev.Changes {
		switch c {
		case fswatcher.Created:
			m.totals.Created++
		case fswatcher.Modified:
			m.totals.Modified++
		case fswatcher.Deleted:
			m.totals.Deleted++
		}
	}
	if journalErr {
		m.totals.JournalErrors++
	}
}

// processErrors schedules a re-watch for every path the engine dropped.
func (m *Monitor) processErrors(ctx context.Context) {
	defer m.wg.Done()

	errs := m.watcher.Errors()
	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-errs:
			if !ok {
				return
			}

			var pathErr *fswatcher.PathError
			if !errors.As(err, &pathErr) || !errors.Is(err, fswatcher.ErrLowLevelFailure) {
				m.logger.Error("watcher error", "error", err)
				continue
			}

			m.logger.Warn("watch dropped, scheduling rewatch",
				"path", pathErr.Path,
				"delay", m.config.RewatchDelay,
				"error", pathErr.Err)

			m.wg.Add(1)
			go m.rewatch(ctx, pathErr.Path)
		}
	}
}

// rewatch retries watching path every RewatchDelay until it succeeds or
// the monitor stops.
func (m *Monitor) rewatch(ctx context.Context, path string) {
	defer m.wg.Done()

	timer := time.NewTimer(m.config.RewatchDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		err := m.watcher.Watch(ctx, path)
		if err == nil {
			m.mu.Lock()
			m.totals.Rewatches++
			m.mu.Unlock()
			m.logger.Info("path rewatched", "path", path)
			return
		}
		if fswatcher.IsMisuse(err) || errors.Is(err, fswatcher.ErrInvalidPath) || ctx.Err() != nil {
			m.logger.Warn("giving up rewatch", "path", path, "error", err)
			return
		}

		m.logger.Warn("rewatch failed", "path", path, "error", err)
		timer.Reset(m.config.RewatchDelay)
	}
}

// periodicUpdates sends an update every refresh interval.
func (m *Monitor) periodicUpdates(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			m.sendUpdate()
		}
	}
}

// sendUpdate sends an update to the updates channel.
func (m *Monitor) sendUpdate() {
	status := m.watcher.Status()

	m.mu.Lock()
	current := m.totals
	update := Update{
		Timestamp: time.Now(),
		Totals:    current,
		Delta:     current.Sub(m.last),
		Status:    status,
	}
	if m.sub != nil {
		update.Pending = m.sub.Pending()
	}
	m.last = current
	m.mu.Unlock()

	// Send update (non-blocking)
	select {
	case m.updates <- update:
	default:
		m.logger.Warn("updates channel full, dropping update")
	}
}

// periodicPrune drops journal records older than the retention period.
func (m *Monitor) periodicPrune(ctx context.Context) {
	defer m.wg.Done()

	m.prune()

	ticker := time.NewTicker(m.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			m.prune()
		}
	}
}

func (m *Monitor) prune() {
	cutoff := time.Now().Add(-m.config.Retention)
	deleted, err := m.journal.Prune(cutoff)
	if err != nil {
		m.logger.Error("failed to prune journal", "error", err)
		return
	}
	if deleted > 0 {
		m.logger.Debug("journal pruned", "deleted", deleted)
	}
}

// Close stops the monitor if running and closes the updates channel.
// The watcher and journal are left to the caller.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	running := m.running
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.sub = nil
	m.mu.Unlock()

	if running {
		m.halt(cancel)
	}

	// Close update channel
	close(m.updates)

	m.logger.Info("monitor closed")
	return nil
}
