// Package archive persists summaries of completed scans. It is a record of
// what ran, not crawl state; a scan can never resume from it.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/probeworks/sitescan/internal/errclass"
)

var bucketScans = []byte("scans")

// Summary is the per-scan record written after a crawl completes.
type Summary struct {
	ScanID       string         `json:"scanId"`
	URL          string         `json:"url"`
	StartedAt    time.Time      `json:"startedAt"`
	DurationMs   int64          `json:"durationMs"`
	ResultCount  int            `json:"resultCount"`
	ErrorCount   int            `json:"errorCount"`
	ErrorSummary errclass.Report `json:"errorSummary"`
}

// Store is a BoltDB-backed archive of scan summaries.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the archive database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketScans)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveSummary writes one summary keyed by its scan id.
func (s *Store) SaveSummary(sum Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal scan summary: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketScans)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(sum.ScanID), data)
	})
}

// ListSummaries returns every archived summary in key order.
func (s *Store) ListSummaries() ([]Summary, error) {
	var out []Summary
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketScans)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.ForEach(func(_, v []byte) error {
			var sum Summary
			if err := json.Unmarshal(v, &sum); err != nil {
				return fmt.Errorf("unmarshal scan summary: %w", err)
			}
			out = append(out, sum)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
