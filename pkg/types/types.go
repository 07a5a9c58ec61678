package types

import (
	"encoding/json"
	"time"
)

// Server is a managed DNS-filtering appliance as seen by callers.
// Password is always plaintext in memory; it is empty when the stored
// credential could not be decrypted.
type Server struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required"`
	Host      string    `json:"host" validate:"required,url,http_url"`
	Username  string    `json:"username" validate:"required"`
	Password  string    `json:"password,omitempty" validate:"required"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ServerRecord is the at-rest form of a Server.
// Password holds either an encrypted secret object or, for records written
// before credentials were encrypted, a bare JSON string.
type ServerRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Host      string          `json:"host"`
	Username  string          `json:"username"`
	Password  json.RawMessage `json:"password,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// RuleCacheEntry is the cached user rule list of one server
type RuleCacheEntry struct {
	ServerID   string    `json:"serverId"`
	Rules      []string  `json:"rules"`
	Count      int       `json:"count"`
	FetchedAt  time.Time `json:"fetchedAt"`
	TTLMinutes int       `json:"ttlMinutes"` // TTL in effect when the entry was written
}

// Settings are the user-editable runtime options
type Settings struct {
	AutoSync            bool `json:"autoSync"`
	PreferLatest        bool `json:"preferLatest"`
	CacheTTLMinutes     int  `json:"cacheTTLMinutes"`
	SyncIntervalMinutes int  `json:"syncIntervalMinutes"`
}

// DefaultSettings returns the settings used until the user saves their own
func DefaultSettings() Settings {
	return Settings{
		AutoSync:            true,
		PreferLatest:        false,
		CacheTTLMinutes:     60,
		SyncIntervalMinutes: 60,
	}
}

// Normalize replaces out-of-range values with defaults
func (s *Settings) Normalize() {
	defaults := DefaultSettings()
	if s.CacheTTLMinutes <= 0 {
		s.CacheTTLMinutes = defaults.CacheTTLMinutes
	}
	if s.SyncIntervalMinutes <= 0 {
		s.SyncIntervalMinutes = defaults.SyncIntervalMinutes
	}
}

// RuleSet is the rule payload returned by sync operations
type RuleSet struct {
	Rules     []string  `json:"rules"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// SyncResult is the outcome of refreshing one server's rules.
// Warning is set when stale cached data is served after a failed fetch.
type SyncResult struct {
	Success   bool     `json:"success"`
	Data      *RuleSet `json:"data,omitempty"`
	FromCache bool     `json:"fromCache"`
	Warning   string   `json:"warning,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// SyncAllResult is the outcome of refreshing every server
type SyncAllResult struct {
	Success bool                   `json:"success"`
	Results map[string]*SyncResult `json:"results,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// RuleSetFromEntry converts a cache entry into a response payload
func RuleSetFromEntry(entry *RuleCacheEntry) *RuleSet {
	if entry == nil {
		return nil
	}
	rules := make([]string, len(entry.Rules))
	copy(rules, entry.Rules)
	return &RuleSet{
		Rules:     rules,
		Count:     len(rules),
		FetchedAt: entry.FetchedAt,
	}
}
