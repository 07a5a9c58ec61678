package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// Store is the persistence the rule cache needs
type Store interface {
	PutRuleCache(entry *types.RuleCacheEntry) error
	GetRuleCache(serverID string) (*types.RuleCacheEntry, error)
	DeleteRuleCache(serverID string) (bool, error)
	ClearRuleCache() error
	GetSettings() (types.Settings, error)
}

// RuleCache holds the last fetched rule list of every server
type RuleCache struct {
	store Store
	now   func() time.Time
}

// New creates a rule cache over store
func New(store Store) *RuleCache {
	return &RuleCache{
		store: store,
		now:   time.Now,
	}
}

// NewWithClock creates a rule cache that reads time from now
func NewWithClock(store Store, now func() time.Time) *RuleCache {
	return &RuleCache{
		store: store,
		now:   now,
	}
}

// Get returns the cached entry for serverID, or nil if there is none
func (c *RuleCache) Get(serverID string) (*types.RuleCacheEntry, error) {
	entry, err := c.store.GetRuleCache(serverID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rule cache: %w", err)
	}
	return entry, nil
}

// Set replaces the entry for serverID with rules, stamped now.
// The current TTL setting is recorded alongside for diagnostics.
func (c *RuleCache) Set(serverID string, rules []string) (*types.RuleCacheEntry, error) {
	settings, err := c.store.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	stored := make([]string, len(rules))
	copy(stored, rules)

	entry := &types.RuleCacheEntry{
		ServerID:   serverID,
		Rules:      stored,
		Count:      len(stored),
		FetchedAt:  c.now().UTC(),
		TTLMinutes: settings.CacheTTLMinutes,
	}

	if err := c.store.PutRuleCache(entry); err != nil {
		return nil, fmt.Errorf("failed to write rule cache: %w", err)
	}
	return entry, nil
}

// IsFresh reports whether serverID has an entry younger than the current
// TTL setting
func (c *RuleCache) IsFresh(serverID string) (bool, error) {
	entry, err := c.Get(serverID)
	if err != nil || entry == nil {
		return false, err
	}

	settings, err := c.store.GetSettings()
	if err != nil {
		return false, fmt.Errorf("failed to read settings: %w", err)
	}

	return Fresh(entry, settings.CacheTTLMinutes, c.now()), nil
}

// Clear removes the entry for serverID and reports whether it existed
func (c *RuleCache) Clear(serverID string) (bool, error) {
	return c.store.DeleteRuleCache(serverID)
}

// ClearAll removes every entry
func (c *RuleCache) ClearAll() error {
	return c.store.ClearRuleCache()
}

// Fresh reports whether entry is younger than ttlMinutes at now.
// The age bound is exclusive: an entry exactly ttlMinutes old is stale.
func Fresh(entry *types.RuleCacheEntry, ttlMinutes int, now time.Time) bool {
	if entry == nil || entry.FetchedAt.IsZero() || ttlMinutes <= 0 {
		return false
	}
	return now.Sub(entry.FetchedAt) < time.Duration(ttlMinutes)*time.Minute
}
