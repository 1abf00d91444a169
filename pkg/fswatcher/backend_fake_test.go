package fswatcher

import (
	"sort"
	"sync"
)

// fakeBackend is an in-memory Backend driven by the test.
type fakeBackend struct {
	mu      sync.Mutex
	watched map[string]bool
	adds    int
	removes int
	failAdd map[string]error
	closed  bool

	notifications chan Notification
	errors        chan error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		watched:       make(map[string]bool),
		failAdd:       make(map[string]error),
		notifications: make(chan Notification, 64),
		errors:        make(chan error, 16),
	}
}

func (b *fakeBackend) Add(dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.failAdd[dir]; err != nil {
		return err
	}
	b.watched[dir] = true
	b.adds++
	return nil
}

func (b *fakeBackend) Remove(dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.watched[dir] {
		b.removes++
	}
	delete(b.watched, dir)
	return nil
}

func (b *fakeBackend) Notifications() <-chan Notification { return b.notifications }

func (b *fakeBackend) Errors() <-chan error { return b.errors }

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.notifications)
		close(b.errors)
	}
	return nil
}

func (b *fakeBackend) notify(name string, op Op) {
	b.notifications <- Notification{Name: name, Op: op}
}

func (b *fakeBackend) setFailAdd(dir string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failAdd, dir)
		return
	}
	b.failAdd[dir] = err
}

func (b *fakeBackend) dirs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.watched))
	for dir := range b.watched {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

func (b *fakeBackend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// fakeFactory hands out a fresh fakeBackend on every Start.
type fakeFactory struct {
	mu       sync.Mutex
	backends []*fakeBackend
	err      error
}

func (f *fakeFactory) New() (Backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	b := newFakeBackend()
	f.backends = append(f.backends, b)
	return b, nil
}

func (f *fakeFactory) last() *fakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.backends) == 0 {
		return nil
	}
	return f.backends[len(f.backends)-1]
}
