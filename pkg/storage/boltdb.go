package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// DBFileName is the database file created inside the data directory
const DBFileName = "burrow.db"

var (
	// Bucket names
	bucketServers   = []byte("servers")
	bucketGroups    = []byte("groups")
	bucketSettings  = []byte("settings")
	bucketRuleCache = []byte("rule_cache")
	bucketSecrets   = []byte("secrets")

	keySettings = []byte("settings")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore creates a new BoltDB-backed store in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFileName)

	// Fail fast instead of blocking forever when another process holds the lock
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketServers,
			bucketGroups,
			bucketSettings,
			bucketRuleCache,
			bucketSecrets,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: dbPath}, nil
}

// Path returns the database file path
func (s *BoltStore) Path() string {
	return s.path
}

// Backup writes a consistent copy of the database to path while the store
// stays open
func (s *BoltStore) Backup(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Server operations
func (s *BoltStore) PutServer(rec *types.ServerRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("server record has no id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ID), data)
	})
}

func (s *BoltStore) GetServer(id string) (*types.ServerRecord, error) {
	var rec types.ServerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("server %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListServers returns all servers ordered by creation time, then ID
func (s *BoltStore) ListServers() ([]*types.ServerRecord, error) {
	var records []*types.ServerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		return b.ForEach(func(k, v []byte) error {
			var rec types.ServerRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to decode server %s: %w", k, err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (s *BoltStore) DeleteServer(id string) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		servers := tx.Bucket(bucketServers)
		existed = servers.Get([]byte(id)) != nil
		if err := servers.Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketRuleCache).Delete([]byte(id))
	})
	return existed, err
}

// Rule cache operations
func (s *BoltStore) PutRuleCache(entry *types.RuleCacheEntry) error {
	if entry.ServerID == "" {
		return fmt.Errorf("rule cache entry has no server id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuleCache)
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(entry.ServerID), data)
	})
}

func (s *BoltStore) GetRuleCache(serverID string) (*types.RuleCacheEntry, error) {
	var entry types.RuleCacheEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuleCache)
		data := b.Get([]byte(serverID))
		if data == nil {
			return fmt.Errorf("rule cache %s: %w", serverID, ErrNotFound)
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *BoltStore) DeleteRuleCache(serverID string) (bool, error) {
	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuleCache)
		existed = b.Get([]byte(serverID)) != nil
		return b.Delete([]byte(serverID))
	})
	return existed, err
}

// ClearRuleCache drops every cached rule list
func (s *BoltStore) ClearRuleCache() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketRuleCache); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketRuleCache)
		return err
	})
}

// Settings operations

// GetSettings returns the saved settings, or defaults if none were saved
func (s *BoltStore) GetSettings() (types.Settings, error) {
	settings := types.DefaultSettings()
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSettings).Get(keySettings)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &settings)
	})
	if err != nil {
		return types.DefaultSettings(), err
	}
	settings.Normalize()
	return settings, nil
}

func (s *BoltStore) PutSettings(settings types.Settings) error {
	settings.Normalize()
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(settings)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSettings).Put(keySettings, data)
	})
}

// Secret operations

// GetSecret returns the stored value, or ErrNotFound
func (s *BoltStore) GetSecret(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSecrets).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("secret %s: %w", key, ErrNotFound)
		}
		// bbolt values are only valid for the life of the transaction
		value = make([]byte, len(data))
		copy(value, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *BoltStore) PutSecret(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).Put([]byte(key), value)
	})
}
