package fswatcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/fswatch/pkg/logger"
)

const eventTimeout = 5 * time.Second

// newFakeWatcher returns a started watcher on a fake backend.
func newFakeWatcher(t *testing.T) (*Watcher, *fakeFactory) {
	t.Helper()

	factory := &fakeFactory{}
	w, err := New(Config{Workers: 4, Backend: factory.New}, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, w.Start(context.Background()))
	return w, factory
}

func expectEvent(t *testing.T, sub *Subscription, path string, change Change) Event {
	t.Helper()

	select {
	case ev, ok := <-sub.C():
		require.True(t, ok, "subscription closed while waiting for %s %s", change, path)
		require.Equal(t, path, ev.Path)
		require.Equal(t, []Change{change}, ev.Changes)
		return ev
	case <-time.After(eventTimeout):
		t.Fatalf("timeout waiting for %s %s", change, path)
		return Event{}
	}
}

func expectNoEvent(t *testing.T, sub *Subscription, wait time.Duration) {
	t.Helper()

	select {
	case ev, ok := <-sub.C():
		if ok {
			t.Fatalf("unexpected event %s %v", ev.Path, ev.Changes)
		}
	case <-time.After(wait):
	}
}

func TestLifecycle(t *testing.T) {
	factory := &fakeFactory{}
	w, err := New(Config{Backend: factory.New}, logger.Noop())
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, StateStopped, w.State())
	assert.ErrorIs(t, w.Stop(), ErrNotRunning)
	assert.ErrorIs(t, w.Watch(ctx, "/tmp/x"), ErrNotRunning)
	assert.ErrorIs(t, w.Unwatch(ctx, "/tmp/x"), ErrNotRunning)

	ready := w.Ready()
	require.NoError(t, w.Start(ctx))
	assert.Equal(t, StateReady, w.State())
	select {
	case <-ready:
	default:
		t.Fatal("ready channel not closed after Start")
	}

	err = w.Start(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.True(t, IsMisuse(err))

	require.NoError(t, w.Stop())
	assert.Equal(t, StateStopped, w.State())
	assert.True(t, factory.last().isClosed())
	assert.ErrorIs(t, w.Stop(), ErrNotRunning)

	select {
	case <-w.Ready():
		t.Fatal("ready channel closed while stopped")
	default:
	}

	// Restart on a fresh backend.
	require.NoError(t, w.Start(ctx))
	assert.Len(t, factory.backends, 2)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, StateStopped, w.State())
	assert.ErrorIs(t, w.Start(ctx), ErrClosed)

	_, open := <-w.Errors()
	assert.False(t, open)
}

func TestStartBackendFailure(t *testing.T) {
	factory := &fakeFactory{err: errors.New("too many open files")}
	w, err := New(Config{Backend: factory.New}, logger.Noop())
	require.NoError(t, err)
	defer w.Close()

	err = w.Start(context.Background())
	assert.ErrorIs(t, err, ErrLowLevelFailure)
	assert.False(t, IsMisuse(err))
	assert.Equal(t, StateStopped, w.State())
}

func TestStartCanceledContext(t *testing.T) {
	w, err := New(Config{Backend: (&fakeFactory{}).New}, logger.Noop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Start(ctx), context.Canceled)
	assert.Equal(t, StateStopped, w.State())
}

func TestWatchInvalidPaths(t *testing.T) {
	w, _ := newFakeWatcher(t)
	ctx := context.Background()

	for _, path := range []string{
		"",
		"/tmp/with\x00nul",
		"/tmp/with\nnewline",
		"/tmp/with\rreturn",
		"/" + strings.Repeat("a", maxNameLen+1),
		strings.Repeat("/abc", maxPathLen/4+1),
	} {
		err := w.Watch(ctx, path)
		assert.ErrorIs(t, err, ErrInvalidPath, "%q", path)

		var pathErr *PathError
		assert.True(t, errors.As(err, &pathErr))
	}

	assert.Equal(t, 0, w.Status().Entries)
	assert.NoError(t, w.Unwatch(ctx, "/tmp/with\x00nul"))
}

func TestWatchSharesDirectoryMonitor(t *testing.T) {
	w, factory := newFakeWatcher(t)
	ctx := context.Background()
	dir := t.TempDir()

	paths := []string{
		filepath.Join(dir, "a.xml"),
		filepath.Join(dir, "b.xml"),
		filepath.Join(dir, "c.xml"),
	}
	for _, p := range paths {
		require.NoError(t, w.Watch(ctx, p))
	}

	backend := factory.last()
	status := w.Status()
	assert.Equal(t, 1, status.Monitors)
	assert.Equal(t, 3, status.Entries)
	assert.Equal(t, []string{dir}, backend.dirs())
	assert.Equal(t, 1, backend.adds)
	assert.Equal(t, paths, w.Paths())

	require.NoError(t, w.Unwatch(ctx, paths[0]))
	require.NoError(t, w.Unwatch(ctx, paths[1]))
	assert.Equal(t, []string{dir}, backend.dirs())

	require.NoError(t, w.Unwatch(ctx, paths[2]))
	assert.Empty(t, backend.dirs())
	assert.Equal(t, 0, w.Status().Monitors)
	assert.Equal(t, 0, w.Status().Entries)
}

func TestWatchIsIdempotent(t *testing.T) {
	w, factory := newFakeWatcher(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "zone.xml")

	require.NoError(t, w.Watch(ctx, path))
	require.NoError(t, w.Watch(ctx, path))
	assert.Equal(t, 1, w.Status().Entries)
	assert.Equal(t, 1, factory.last().adds)

	require.NoError(t, w.Unwatch(ctx, path))
	require.NoError(t, w.Unwatch(ctx, path))
	assert.Equal(t, 0, w.Status().Entries)
}

func TestWatchBackendFailureReverts(t *testing.T) {
	w, factory := newFakeWatcher(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.xml")

	backend := factory.last()
	backend.setFailAdd(dir, errors.New("no space left on device"))

	err := w.Watch(ctx, path)
	assert.ErrorIs(t, err, ErrLowLevelFailure)
	assert.Equal(t, 0, w.Status().Entries)
	assert.Equal(t, 0, w.Status().Monitors)
	assert.Empty(t, w.Paths())

	backend.setFailAdd(dir, nil)
	require.NoError(t, w.Watch(ctx, path))
	assert.Equal(t, 1, w.Status().Entries)
}

func TestCreateModifyDelete(t *testing.T) {
	w, factory := newFakeWatcher(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.xml")
	backend := factory.last()

	sub := w.Subscribe()
	require.NoError(t, w.Watch(ctx, path))

	require.NoError(t, os.WriteFile(path, []byte("<zone/>"), 0600))
	backend.notify(path, OpCreate)
	expectEvent(t, sub, path, Created)

	require.NoError(t, os.WriteFile(path, []byte("<zone name=\"web01\"/>"), 0600))
	backend.notify(path, OpWrite)
	expectEvent(t, sub, path, Modified)

	require.NoError(t, os.Remove(path))
	backend.notify(path, OpRemove)
	expectEvent(t, sub, path, Deleted)

	// A notification without a state change yields nothing.
	backend.notify(path, OpChmod)
	expectNoEvent(t, sub, 100*time.Millisecond)
}

func TestNotificationForUnwatchedSibling(t *testing.T) {
	w, factory := newFakeWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.xml")
	sibling := filepath.Join(dir, "other.xml")
	backend := factory.last()

	sub := w.Subscribe()
	require.NoError(t, w.Watch(context.Background(), path))

	require.NoError(t, os.WriteFile(sibling, []byte("x"), 0600))
	backend.notify(sibling, OpCreate)
	expectNoEvent(t, sub, 100*time.Millisecond)
}

func TestWriteThenRevertProducesNoEvent(t *testing.T) {
	w, factory := newFakeWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.xml")
	require.NoError(t, os.WriteFile(path, []byte("aaaa"), 0600))
	info, err := os.Stat(path)
	require.NoError(t, err)

	sub := w.Subscribe()
	require.NoError(t, w.Watch(context.Background(), path))

	require.NoError(t, os.WriteFile(path, []byte("bbbb"), 0600))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))
	factory.last().notify(path, OpWrite)

	expectNoEvent(t, sub, 200*time.Millisecond)
}

func TestSubscribeFilter(t *testing.T) {
	w, factory := newFakeWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.xml")
	backend := factory.last()

	deletes := w.Subscribe(Deleted)
	require.NoError(t, w.Watch(context.Background(), path))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	backend.notify(path, OpCreate)
	require.Eventually(t, func() bool {
		return w.Status().Diagnostics.EventsPublished == 1
	}, eventTimeout, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	backend.notify(path, OpRemove)

	expectEvent(t, deletes, path, Deleted)
	assert.Equal(t, uint64(2), w.Status().Diagnostics.EventsPublished)
}

func TestMissingParentDirectories(t *testing.T) {
	w, factory := newFakeWatcher(t)
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	path := filepath.Join(nested, "zone.xml")
	backend := factory.last()

	sub := w.Subscribe()
	require.NoError(t, w.Watch(context.Background(), path))
	assert.Equal(t, []string{root}, backend.dirs())

	require.NoError(t, os.MkdirAll(nested, 0700))
	backend.notify(filepath.Join(root, "a"), OpCreate)

	require.Eventually(t, func() bool {
		dirs := backend.dirs()
		return len(dirs) == 1 && dirs[0] == nested
	}, eventTimeout, 10*time.Millisecond)
	assert.Equal(t, 1, w.Status().Monitors)
	assert.Equal(t, uint64(1), w.Status().Diagnostics.Rehomes)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	backend.notify(path, OpCreate)
	expectEvent(t, sub, path, Created)
}

func TestDirectoryRemovalMovesWatchUp(t *testing.T) {
	w, factory := newFakeWatcher(t)
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	path := filepath.Join(sub, "zone.xml")
	require.NoError(t, os.Mkdir(sub, 0700))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	backend := factory.last()

	events := w.Subscribe()
	require.NoError(t, w.Watch(context.Background(), path))
	assert.Equal(t, []string{sub}, backend.dirs())

	require.NoError(t, os.RemoveAll(sub))
	backend.notify(sub, OpRemove)
	expectEvent(t, events, path, Deleted)

	require.Eventually(t, func() bool {
		dirs := backend.dirs()
		return len(dirs) == 1 && dirs[0] == root
	}, eventTimeout, 10*time.Millisecond)

	// Recreating the tree brings the path back.
	require.NoError(t, os.Mkdir(sub, 0700))
	backend.notify(sub, OpCreate)
	require.Eventually(t, func() bool {
		dirs := backend.dirs()
		return len(dirs) == 1 && dirs[0] == sub
	}, eventTimeout, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("y"), 0600))
	backend.notify(path, OpCreate)
	expectEvent(t, events, path, Created)
}

func TestUnwatchDiscardsQueuedEvents(t *testing.T) {
	w, factory := newFakeWatcher(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.xml")
	backend := factory.last()

	sub := w.Subscribe()
	require.NoError(t, w.Watch(ctx, path))

	published := func(n uint64) func() bool {
		return func() bool { return w.Status().Diagnostics.EventsPublished == n }
	}

	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	backend.notify(path, OpCreate)
	require.Eventually(t, published(1), eventTimeout, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("xyz"), 0600))
	backend.notify(path, OpWrite)
	require.Eventually(t, published(2), eventTimeout, 10*time.Millisecond)

	require.NoError(t, w.Unwatch(ctx, path))
	expectNoEvent(t, sub, 200*time.Millisecond)
	assert.Equal(t, uint64(2), w.Status().Diagnostics.EventsDiscarded)
	assert.Equal(t, uint64(0), w.Status().Diagnostics.EventsDelivered)
}

func TestOverflowRescans(t *testing.T) {
	w, factory := newFakeWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.xml")
	backend := factory.last()

	sub := w.Subscribe()
	require.NoError(t, w.Watch(context.Background(), path))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	backend.errors <- ErrOverflow

	expectEvent(t, sub, path, Created)
	assert.Equal(t, uint64(1), w.Status().Diagnostics.Overflows)
}

func TestDirectoryFailureDropsEntries(t *testing.T) {
	w, factory := newFakeWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.xml")
	backend := factory.last()

	require.NoError(t, w.Watch(context.Background(), path))
	backend.errors <- &DirError{Dir: dir, Err: errors.New("watch descriptor revoked")}

	select {
	case err := <-w.Errors():
		assert.ErrorIs(t, err, ErrLowLevelFailure)
		var pathErr *PathError
		require.True(t, errors.As(err, &pathErr))
		assert.Equal(t, path, pathErr.Path)
	case <-time.After(eventTimeout):
		t.Fatal("timeout waiting for error")
	}

	assert.Equal(t, 0, w.Status().Entries)
	assert.Equal(t, 0, w.Status().Monitors)
}

func TestStopClosesSubscriptions(t *testing.T) {
	w, factory := newFakeWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.xml")

	sub := w.Subscribe()
	require.NoError(t, w.Watch(context.Background(), path))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	factory.last().notify(path, OpCreate)
	require.Eventually(t, func() bool {
		return w.Status().Diagnostics.EventsPublished == 1
	}, eventTimeout, 10*time.Millisecond)

	require.NoError(t, w.Stop())

	_, ok := <-sub.C()
	assert.False(t, ok, "no event may be delivered after Stop")
	assert.Equal(t, 0, w.Status().Subscriptions)
	assert.Equal(t, 0, w.Status().Entries)
}

func TestStopFromConsumer(t *testing.T) {
	w, factory := newFakeWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.xml")

	sub := w.Subscribe()
	require.NoError(t, w.Watch(context.Background(), path))

	done := make(chan error, 1)
	go func() {
		for range sub.C() {
			done <- w.Stop()
		}
	}()

	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	factory.last().notify(path, OpCreate)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(eventTimeout):
		t.Fatal("Stop from consumer did not return")
	}
	assert.Equal(t, StateStopped, w.State())
}

func TestSubscriptionClose(t *testing.T) {
	w, _ := newFakeWatcher(t)

	sub := w.Subscribe()
	assert.Equal(t, 1, w.Status().Subscriptions)
	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.Equal(t, 0, w.Status().Subscriptions)
}

func TestSubscribeAfterClose(t *testing.T) {
	w, err := New(Config{Backend: (&fakeFactory{}).New}, logger.Noop())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, ok := <-w.Subscribe().C()
	assert.False(t, ok)
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	factory := &fakeFactory{}

	w1, err := New(Config{Backend: factory.New, Registerer: reg}, logger.Noop())
	require.NoError(t, err)
	w2, err := New(Config{Backend: factory.New, Registerer: reg}, logger.Noop())
	require.NoError(t, err)
	defer w2.Close()

	require.NoError(t, w1.Start(context.Background()))
	path := filepath.Join(t.TempDir(), "zone.xml")
	require.NoError(t, w1.Watch(context.Background(), path))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "watcher" && lp.GetValue() == w1.ID() {
					switch {
					case m.GetGauge() != nil:
						values[mf.GetName()] = m.GetGauge().GetValue()
					case m.GetCounter() != nil:
						values[mf.GetName()] = m.GetCounter().GetValue()
					}
				}
			}
		}
	}
	assert.Equal(t, 1.0, values["fswatch_engine_watched_paths"])
	assert.Equal(t, 1.0, values["fswatch_engine_directory_monitors"])
	assert.Equal(t, 1.0, values["fswatch_engine_ready"])

	require.NoError(t, w1.Close())
	families, err = reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				assert.NotEqual(t, w1.ID(), lp.GetValue(), "metrics of closed watcher still registered")
			}
		}
	}
}

func TestLogRecordsCarryComponent(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, logger.Config{Level: "info", Format: "text"})

	factory := &fakeFactory{}
	w, err := New(Config{Backend: factory.New}, log)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Start(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "watcher started")
	assert.Contains(t, out, "component=fswatcher")
	assert.Contains(t, out, "watcher_id="+w.ID())
}
