// Package storage archives finished scan records in a bbolt database and
// lays out report files on disk.
package storage

import (
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketScans     = []byte("scans")
	bucketScanIndex = []byte("scan_index")
)

// Store is the scan archive. Records are JSON values keyed by scan id and
// indexed by target.
type Store struct {
	db   *bbolt.DB
	keep int
}

// Option configures a Store.
type Option func(*Store)

// WithKeepPerTarget bounds the archive to the n newest records of every
// target. Older records are removed when a new one is saved. n <= 0 keeps
// everything.
func WithKeepPerTarget(n int) Option {
	return func(s *Store) { s.keep = max(n, 0) }
}

// NewStore opens (creating if needed) the archive at path.
func NewStore(path string, opts ...Option) (*Store, error) {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketScans, bucketScanIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
