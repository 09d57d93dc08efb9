package storage

import (
	"encoding/json"
	"slices"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hakim/scandeck/internal/models"
)

// SaveScan persists a scan record, replacing any earlier copy with the same ID
func (s *Store) SaveScan(rec models.ScanRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		scans := tx.Bucket(bucketScans)
		if err := scans.Put([]byte(rec.ID), data); err != nil {
			return err
		}

		// Update scan index (target -> []scan_id mapping)
		index := tx.Bucket(bucketScanIndex)
		targetKey := []byte(rec.Target)

		var scanIDs []string
		if existing := index.Get(targetKey); existing != nil {
			if err := json.Unmarshal(existing, &scanIDs); err != nil {
				return err
			}
		}
		if slices.Contains(scanIDs, rec.ID) {
			return nil
		}
		scanIDs = append(scanIDs, rec.ID)
		if s.keep > 0 && len(scanIDs) > s.keep {
			if scanIDs, err = prune(scans, scanIDs, s.keep); err != nil {
				return err
			}
		}

		indexData, err := json.Marshal(scanIDs)
		if err != nil {
			return err
		}
		return index.Put(targetKey, indexData)
	})
}

// GetScan retrieves an archived record by ID. It returns nil, nil when the ID
// is not in the archive.
func (s *Store) GetScan(id string) (*models.ScanRecord, error) {
	var rec *models.ScanRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketScans).Get([]byte(id))
		if data == nil {
			return nil
		}
		rec = &models.ScanRecord{}
		return json.Unmarshal(data, rec)
	})

	return rec, err
}

// ListScans retrieves every archived record for a target, newest first
func (s *Store) ListScans(target string) ([]models.ScanRecord, error) {
	var recs []models.ScanRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketScanIndex).Get([]byte(target))
		if data == nil {
			return nil
		}

		var scanIDs []string
		if err := json.Unmarshal(data, &scanIDs); err != nil {
			return err
		}

		scans := tx.Bucket(bucketScans)
		for _, id := range scanIDs {
			raw := scans.Get([]byte(id))
			if raw == nil {
				continue
			}
			var rec models.ScanRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNewestFirst(recs)
	return recs, nil
}

// ListAll retrieves every archived record, newest first. A positive limit
// caps the number returned.
func (s *Store) ListAll(limit int) ([]models.ScanRecord, error) {
	var recs []models.ScanRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScans).ForEach(func(_, v []byte) error {
			var rec models.ScanRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortNewestFirst(recs)
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Targets lists every target with at least one archived scan, in key order
func (s *Store) Targets() ([]string, error) {
	var targets []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScanIndex).ForEach(func(k, _ []byte) error {
			targets = append(targets, string(k))
			return nil
		})
	})
	return targets, err
}

// GetLatestScan retrieves the most recent archived scan for a target
func (s *Store) GetLatestScan(target string) (*models.ScanRecord, error) {
	recs, err := s.ListScans(target)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

func sortNewestFirst(recs []models.ScanRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].StartTime.After(recs[j].StartTime)
	})
}

// prune deletes all but the keep newest records among ids and returns the
// ids that remain, oldest first.
func prune(scans *bbolt.Bucket, ids []string, keep int) ([]string, error) {
	type entry struct {
		id    string
		start time.Time
	}
	entries := make([]entry, 0, len(ids))
	for _, id := range ids {
		raw := scans.Get([]byte(id))
		if raw == nil {
			continue
		}
		var rec struct {
			StartTime time.Time `json:"start_time"`
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		entries = append(entries, entry{id, rec.StartTime})
	}
	slices.SortStableFunc(entries, func(a, b entry) int { return a.start.Compare(b.start) })

	drop := max(len(entries)-keep, 0)
	for _, e := range entries[:drop] {
		if err := scans.Delete([]byte(e.id)); err != nil {
			return nil, err
		}
	}
	kept := make([]string, 0, len(entries)-drop)
	for _, e := range entries[drop:] {
		kept = append(kept, e.id)
	}
	return kept, nil
}
