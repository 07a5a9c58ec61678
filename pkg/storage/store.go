package storage

import (
	"errors"

	"github.com/cuemby/burrow/pkg/types"
)

// ErrNotFound is returned when a keyed record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for Burrow's local state
// This is implemented by BoltDB-backed storage
type Store interface {
	// Servers
	PutServer(rec *types.ServerRecord) error
	GetServer(id string) (*types.ServerRecord, error)
	ListServers() ([]*types.ServerRecord, error)
	// DeleteServer removes the server and its rule cache entry together.
	// It reports whether the server existed.
	DeleteServer(id string) (bool, error)

	// Rule cache
	PutRuleCache(entry *types.RuleCacheEntry) error
	GetRuleCache(serverID string) (*types.RuleCacheEntry, error)
	DeleteRuleCache(serverID string) (bool, error)
	ClearRuleCache() error

	// Settings
	GetSettings() (types.Settings, error)
	PutSettings(settings types.Settings) error

	// Secrets holds device-local key material
	GetSecret(key string) ([]byte, error)
	PutSecret(key string, value []byte) error

	// Utility
	Path() string
	Backup(path string) error
	Close() error
}
