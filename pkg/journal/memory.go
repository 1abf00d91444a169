package journal

import (
	"sync"
	"time"
)

// memoryJournal implements Journal using an in-memory slice.
// Useful for testing or when persistence is not needed.
type memoryJournal struct {
	mu      sync.RWMutex
	records []Record
	nextSeq uint64
}

// NewMemory creates an in-memory journal.
func NewMemory() Journal {
	return &memoryJournal{}
}

// Append implements Journal.Append.
func (j *memoryJournal) Append(rec Record) (Record, error) {
	if err := validate(rec); err != nil {
		return Record{}, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.nextSeq++
	rec.Seq = j.nextSeq
	j.records = append(j.records, rec)
	return rec, nil
}

// List implements Journal.List.
func (j *memoryJournal) List(q Query) ([]Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []Record
	for i := len(j.records) - 1; i >= 0; i-- {
		if !q.matches(j.records[i]) {
			continue
		}
		out = append(out, j.records[i])
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}

	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// Last implements Journal.Last.
func (j *memoryJournal) Last(path string) (Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for i := len(j.records) - 1; i >= 0; i-- {
		if j.records[i].Path == path {
			return j.records[i], nil
		}
	}
	return Record{}, ErrNotFound
}

// Prune implements Journal.Prune.
func (j *memoryJournal) Prune(cutoff time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	kept := j.records[:0]
	for _, rec := range j.records {
		if !rec.Timestamp.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	deleted := len(j.records) - len(kept)
	j.records = kept
	return deleted, nil
}

// Stats implements Journal.Stats.
func (j *memoryJournal) Stats() (Stats, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	paths := make(map[string]struct{})
	for _, rec := range j.records {
		paths[rec.Path] = struct{}{}
	}
	return Stats{Records: len(j.records), Paths: len(paths)}, nil
}

// Close implements Journal.Close.
func (j *memoryJournal) Close() error {
	return nil
}
