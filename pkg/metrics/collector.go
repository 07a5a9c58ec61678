package metrics

import (
	"errors"
	"time"

	"github.com/cuemby/burrow/pkg/cache"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
)

// Source is the read-only view of local state the collector samples
type Source interface {
	ListServers() ([]*types.ServerRecord, error)
	GetRuleCache(serverID string) (*types.RuleCacheEntry, error)
	GetSettings() (types.Settings, error)
}

// Collector periodically samples inventory gauges from local state
type Collector struct {
	source   Source
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source Source) *Collector {
	return &Collector{
		source:   source,
		interval: 15 * time.Second,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	servers, err := c.source.ListServers()
	if err != nil {
		return
	}
	ServersTotal.Set(float64(len(servers)))

	settings, err := c.source.GetSettings()
	if err != nil {
		return
	}

	now := c.now()
	fresh, stale, rules := 0, 0, 0
	for _, srv := range servers {
		entry, err := c.source.GetRuleCache(srv.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return
		}

		rules += len(entry.Rules)
		if cache.Fresh(entry, settings.CacheTTLMinutes, now) {
			fresh++
		} else {
			stale++
		}
	}

	RuleCacheEntries.WithLabelValues("fresh").Set(float64(fresh))
	RuleCacheEntries.WithLabelValues("stale").Set(float64(stale))
	CachedRulesTotal.Set(float64(rules))
}
