package fswatcher

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// dirMonitor is the single backend registration of one directory, shared by
// every watch entry placed on it.
type dirMonitor struct {
	dir string
	id  Signature // identity of the directory when registered

	// refs and retired are guarded by pool.mu.
	refs    int
	retired bool

	mu sync.Mutex
	// dependents indexes entries by the first path component below dir,
	// which is the name the backend reports for them.
	dependents map[string]map[*entry]struct{}
}

// children returns the entries reached through name.
func (m *dirMonitor) children(name string) []*entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := m.dependents[name]
	out := make([]*entry, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	return out
}

// all returns every entry placed on the monitor.
func (m *dirMonitor) all() []*entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*entry
	for _, set := range m.dependents {
		for e := range set {
			out = append(out, e)
		}
	}
	return out
}

// vanished reports whether the registered directory no longer exists at
// its path.
func (m *dirMonitor) vanished() bool {
	info, err := os.Stat(m.dir)
	if err != nil || !info.IsDir() {
		return true
	}
	dev, ino := fileIdentity(info)
	return dev != m.id.Device || ino != m.id.Inode
}

// pool is the Directory Monitor Pool: at most one backend registration per
// directory, reference counted by the entries placed on it.
type pool struct {
	backend Backend

	mu       sync.Mutex
	monitors map[string]*dirMonitor
}

func newPool(backend Backend) *pool {
	return &pool{
		backend:  backend,
		monitors: make(map[string]*dirMonitor),
	}
}

// acquire places e on the monitor of dir, registering dir with the backend
// when no monitor exists yet.
func (p *pool) acquire(dir string, e *entry) (*dirMonitor, error) {
	p.mu.Lock()
	m, ok := p.monitors[dir]
	if !ok {
		info, err := os.Stat(dir)
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		if err := p.backend.Add(dir); err != nil {
			p.mu.Unlock()
			return nil, err
		}
		dev, ino := fileIdentity(info)
		m = &dirMonitor{
			dir:        dir,
			id:         Signature{Device: dev, Inode: ino},
			dependents: make(map[string]map[*entry]struct{}),
		}
		p.monitors[dir] = m
	}
	m.refs++
	p.mu.Unlock()

	name := childName(dir, e.path)
	m.mu.Lock()
	set := m.dependents[name]
	if set == nil {
		set = make(map[*entry]struct{})
		m.dependents[name] = set
	}
	set[e] = struct{}{}
	m.mu.Unlock()

	return m, nil
}

// release removes e from m and drops the backend registration once no
// entry is left on it.
func (p *pool) release(m *dirMonitor, e *entry) error {
	name := childName(m.dir, e.path)
	m.mu.Lock()
	if set := m.dependents[name]; set != nil {
		delete(set, e)
		if len(set) == 0 {
			delete(m.dependents, name)
		}
	}
	m.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	m.refs--
	if m.refs > 0 {
		return nil
	}
	if m.retired {
		if _, replaced := p.monitors[m.dir]; replaced {
			// The registration now belongs to the replacement.
			return nil
		}
		return p.backend.Remove(m.dir)
	}
	delete(p.monitors, m.dir)
	return p.backend.Remove(m.dir)
}

// retire takes m out of the index so that the next acquire of its directory
// registers afresh. Entries still placed on m keep their references until
// they move.
func (p *pool) retire(m *dirMonitor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.monitors[m.dir] == m {
		delete(p.monitors, m.dir)
	}
	m.retired = true
}

// isRetired reports whether m was retired.
func (p *pool) isRetired(m *dirMonitor) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return m.retired
}

// get returns the live monitor of dir, if any.
func (p *pool) get(dir string) *dirMonitor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.monitors[dir]
}

// dirs returns the monitored directories in lexical order.
func (p *pool) dirs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.monitors))
	for dir := range p.monitors {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

func (p *pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.monitors)
}

// nearestDir returns dir itself if it is an existing directory, otherwise
// its closest existing ancestor.
func nearestDir(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// childName returns the first component of path below dir.
func childName(dir, path string) string {
	rel := strings.TrimPrefix(path, dir)
	rel = strings.TrimLeft(rel, string(os.PathSeparator))
	if i := strings.IndexRune(rel, os.PathSeparator); i >= 0 {
		return rel[:i]
	}
	return rel
}
