package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// LogSyncRecord persists one sync outcome
func (db *Database) LogSyncRecord(record *SyncRecord) error {
	record.CreatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), record)
}

// GetRecentSyncRecords retrieves the most recent sync records, newest first
func (db *Database) GetRecentSyncRecords(limit int) ([]*SyncRecord, error) {
	var records []*SyncRecord
	err := db.store.Find(&records, nil)
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// GetSyncRecordsByUser retrieves all sync records for one media server user
func (db *Database) GetSyncRecordsByUser(userName string) ([]*SyncRecord, error) {
	var records []*SyncRecord
	err := db.store.Find(&records, bolthold.Where("UserName").Eq(userName))
	return records, err
}

// CountSyncRecordsByStatus counts records grouped by outcome status
func (db *Database) CountSyncRecordsByStatus() (map[SyncStatus]int, error) {
	var records []*SyncRecord
	if err := db.store.Find(&records, nil); err != nil {
		return nil, err
	}

	counts := make(map[SyncStatus]int)
	for _, record := range records {
		counts[record.Status]++
	}
	return counts, nil
}

// DeleteSyncRecordsBefore deletes records created before the cutoff time.
// Returns the number of deleted records.
func (db *Database) DeleteSyncRecordsBefore(cutoff time.Time) (int, error) {
	var records []*SyncRecord
	err := db.store.Find(&records, bolthold.Where("CreatedAt").Lt(cutoff))
	if err != nil {
		return 0, err
	}

	for _, record := range records {
		if err := db.store.Delete(record.ID, &SyncRecord{}); err != nil {
			return 0, err
		}
	}

	return len(records), nil
}
