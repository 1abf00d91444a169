package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/fswatch/pkg/logger"
)

// Bucket names.
var (
	bucketEvents = []byte("events") // Seq -> Record
	bucketPaths  = []byte("paths")  // Path -> Seq of latest record (index)
)

// boltJournal implements Journal using BoltDB.
type boltJournal struct {
	db     *bolt.DB
	logger logger.Logger
	config Config
}

// Open opens (creating if needed) the journal at cfg.Path.
func Open(cfg Config, log logger.Logger) (Journal, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	dbPath := expandHome(cfg.Path)

	if !cfg.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout:  cfg.Timeout,
		ReadOnly: cfg.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if !cfg.ReadOnly {
		if err := db.Update(func(tx *bolt.Tx) error {
			if _, createErr := tx.CreateBucketIfNotExists(bucketEvents); createErr != nil {
				return fmt.Errorf("failed to create events bucket: %w", createErr)
			}
			if _, createErr := tx.CreateBucketIfNotExists(bucketPaths); createErr != nil {
				return fmt.Errorf("failed to create paths bucket: %w", createErr)
			}
			return nil
		}); err != nil {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("failed to close journal after initialization error",
					"error", closeErr)
			}
			return nil, err
		}
	}

	log.Info("journal opened", "path", dbPath, "read_only", cfg.ReadOnly)

	return &boltJournal{
		db:     db,
		logger: log,
		config: cfg,
	}, nil
}

// Append implements Journal.Append.
func (j *boltJournal) Append(rec Record) (Record, error) {
	if err := validate(rec); err != nil {
		return Record{}, err
	}

	err := j.db.Update(func(tx *bolt.Tx) error {
		events := tx.Bucket(bucketEvents)
		paths := tx.Bucket(bucketPaths)

		seq, err := events.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		rec.Seq = seq

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		key := seqKey(seq)
		if err := events.Put(key, data); err != nil {
			return fmt.Errorf("failed to store record: %w", err)
		}
		if err := paths.Put([]byte(rec.Path), key); err != nil {
			return fmt.Errorf("failed to store path index: %w", err)
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}

	return rec, nil
}

// List implements Journal.List.
func (j *boltJournal) List(q Query) ([]Record, error) {
	var out []Record

	err := j.db.View(func(tx *bolt.Tx) error {
		events := tx.Bucket(bucketEvents)
		if events == nil {
			return nil
		}

		// Walk backwards so Limit keeps the newest matches.
		c := events.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if !q.matches(rec) {
				continue
			}
			out = append(out, rec)
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// Last implements Journal.Last.
func (j *boltJournal) Last(path string) (Record, error) {
	var rec Record

	err := j.db.View(func(tx *bolt.Tx) error {
		paths := tx.Bucket(bucketPaths)
		events := tx.Bucket(bucketEvents)
		if paths == nil || events == nil {
			return ErrNotFound
		}

		key := paths.Get([]byte(path))
		if key == nil {
			return ErrNotFound
		}
		data := events.Get(key)
		if data == nil {
			return ErrNotFound
		}

		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		return nil
	})

	return rec, err
}

// Prune implements Journal.Prune.
func (j *boltJournal) Prune(cutoff time.Time) (int, error) {
	deleted := 0

	err := j.db.Update(func(tx *bolt.Tx) error {
		events := tx.Bucket(bucketEvents)
		paths := tx.Bucket(bucketPaths)

		// Collect first: deleting under a live cursor skips keys.
		var stale []Record
		if err := events.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			if rec.Timestamp.Before(cutoff) {
				stale = append(stale, rec)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, rec := range stale {
			key := seqKey(rec.Seq)
			if err := events.Delete(key); err != nil {
				return fmt.Errorf("failed to delete record: %w", err)
			}
			if latest := paths.Get([]byte(rec.Path)); latest != nil && binary.BigEndian.Uint64(latest) == rec.Seq {
				if err := paths.Delete([]byte(rec.Path)); err != nil {
					return fmt.Errorf("failed to delete path index: %w", err)
				}
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		j.logger.Info("journal pruned", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// Stats implements Journal.Stats.
func (j *boltJournal) Stats() (Stats, error) {
	var st Stats

	err := j.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketEvents); b != nil {
			st.Records = b.Stats().KeyN
		}
		if b := tx.Bucket(bucketPaths); b != nil {
			st.Paths = b.Stats().KeyN
		}
		return nil
	})

	return st, err
}

// Close implements Journal.Close.
func (j *boltJournal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}

	j.logger.Info("journal closed")
	return nil
}

func validate(rec Record) error {
	if rec.Path == "" || len(rec.Changes) == 0 {
		return ErrInvalidRecord
	}
	if rec.WatcherID != "" {
		if _, err := uuid.Parse(rec.WatcherID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidWatcherID, err)
		}
	}
	return nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// expandHome expands ~ in file paths to the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}
