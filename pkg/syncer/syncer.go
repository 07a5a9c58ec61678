package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/cache"
	"github.com/cuemby/burrow/pkg/credentials"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/rules"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Result messages surfaced to callers verbatim
const (
	MsgServerNotFound     = "Server not found"
	MsgAutoSyncDisabled   = "Auto-sync is disabled"
	MsgNoServers          = "No servers configured"
	MsgPasswordUnreadable = credentials.MsgPasswordUnreadable
)

// errPasswordUnreadable is returned instead of calling an appliance with an
// empty password
var errPasswordUnreadable = errors.New(MsgPasswordUnreadable)

// Servers looks up servers with their plaintext credentials
type Servers interface {
	Get(id string) (*types.Server, error)
	List() ([]*types.Server, error)
}

// Appliance reads and replaces an appliance's user rules
type Appliance interface {
	UserRules(ctx context.Context, srv *types.Server) ([]string, error)
	SetRules(ctx context.Context, srv *types.Server, rules []string) error
}

// Settings provides the current user settings
type Settings interface {
	GetSettings() (types.Settings, error)
}

// Engine combines the rule cache and the appliance client into the rule
// refresh operations, including stale-cache fallback and the background
// auto-sync loop
type Engine struct {
	servers   Servers
	appliance Appliance
	cache     *cache.RuleCache
	settings  Settings
	broker    *events.Broker
	logger    zerolog.Logger

	// allMu keeps RefreshAll passes from overlapping
	allMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a sync engine. broker may be nil.
func New(servers Servers, appliance Appliance, ruleCache *cache.RuleCache, settings Settings, broker *events.Broker) *Engine {
	return &Engine{
		servers:   servers,
		appliance: appliance,
		cache:     ruleCache,
		settings:  settings,
		broker:    broker,
		logger:    log.WithComponent("syncer"),
		stopCh:    make(chan struct{}),
	}
}

// Refresh returns the rules of one server. Unless force is set, a fresh
// cache entry is returned without a network call. A failed fetch falls back
// to any cached entry, however old, with a warning. Refresh never returns an
// error; failures are reported in the result.
func (e *Engine) Refresh(ctx context.Context, serverID string, force bool) *types.SyncResult {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncDuration)

	logger := e.logger.With().Str("server_id", serverID).Logger()

	srv, err := e.servers.Get(serverID)
	if err != nil {
		metrics.SyncTotal.WithLabelValues("failed").Inc()
		if errors.Is(err, storage.ErrNotFound) {
			return &types.SyncResult{Error: MsgServerNotFound}
		}
		logger.Error().Err(err).Msg("Failed to load server")
		return &types.SyncResult{Error: err.Error()}
	}

	if !force {
		if result := e.fromFreshCache(serverID); result != nil {
			metrics.SyncTotal.WithLabelValues("cache").Inc()
			return result
		}
	}

	fetched, err := e.fetch(ctx, srv)
	if err == nil {
		return e.store(serverID, fetched)
	}

	return e.fallback(serverID, err)
}

func (e *Engine) fromFreshCache(serverID string) *types.SyncResult {
	fresh, err := e.cache.IsFresh(serverID)
	if err != nil {
		e.logger.Warn().Err(err).Str("server_id", serverID).Msg("Cache check failed, fetching from appliance")
		return nil
	}
	if !fresh {
		return nil
	}

	entry, err := e.cache.Get(serverID)
	if err != nil || entry == nil {
		return nil
	}
	return &types.SyncResult{
		Success:   true,
		Data:      types.RuleSetFromEntry(entry),
		FromCache: true,
	}
}

func (e *Engine) fetch(ctx context.Context, srv *types.Server) ([]string, error) {
	if srv.Password == "" {
		return nil, errPasswordUnreadable
	}
	return e.appliance.UserRules(ctx, srv)
}

// store normalizes freshly fetched rules and replaces the cache entry
func (e *Engine) store(serverID string, fetched []string) *types.SyncResult {
	normalized := rules.Normalize(fetched)

	entry, err := e.cache.Set(serverID, normalized)
	if err != nil {
		// The appliance answered; a local write failure should not hide that
		e.logger.Error().Err(err).Str("server_id", serverID).Msg("Failed to cache rules")
		metrics.SyncTotal.WithLabelValues("network").Inc()
		return &types.SyncResult{
			Success: true,
			Data: &types.RuleSet{
				Rules:     normalized,
				Count:     len(normalized),
				FetchedAt: time.Now().UTC(),
			},
			Warning: fmt.Sprintf("Rules were fetched but not cached: %v", err),
		}
	}

	metrics.SyncTotal.WithLabelValues("network").Inc()
	e.logger.Debug().Str("server_id", serverID).Int("rules", entry.Count).Msg("Rules refreshed")
	e.broker.Publish(&events.Event{
		Type:     events.EventRulesRefreshed,
		ServerID: serverID,
		Message:  fmt.Sprintf("%d rules", entry.Count),
	})
	return &types.SyncResult{
		Success: true,
		Data:    types.RuleSetFromEntry(entry),
	}
}

// fallback serves any cached entry after a failed fetch
func (e *Engine) fallback(serverID string, fetchErr error) *types.SyncResult {
	logger := e.logger.With().Str("server_id", serverID).Logger()

	entry, err := e.cache.Get(serverID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read rule cache")
	}

	if entry == nil {
		metrics.SyncTotal.WithLabelValues("failed").Inc()
		logger.Warn().Err(fetchErr).Msg("Rule fetch failed with no cache to fall back to")
		e.broker.Publish(&events.Event{
			Type:     events.EventRulesFailed,
			ServerID: serverID,
			Message:  fetchErr.Error(),
		})
		return &types.SyncResult{Error: fetchErr.Error()}
	}

	metrics.SyncTotal.WithLabelValues("stale").Inc()
	logger.Warn().Err(fetchErr).Time("fetched_at", entry.FetchedAt).Msg("Serving stale rules")
	e.broker.Publish(&events.Event{
		Type:     events.EventRulesStale,
		ServerID: serverID,
		Message:  fetchErr.Error(),
	})
	return &types.SyncResult{
		Success:   true,
		Data:      types.RuleSetFromEntry(entry),
		FromCache: true,
		Warning:   fmt.Sprintf("Using cached rules: %v", fetchErr),
	}
}

// RefreshAll refreshes every server one at a time, in list order.
// Without force it does nothing when auto-sync is disabled. Success is set
// when at least one server refreshed.
func (e *Engine) RefreshAll(ctx context.Context, force bool) *types.SyncAllResult {
	settings, err := e.settings.GetSettings()
	if err != nil {
		return &types.SyncAllResult{Error: err.Error()}
	}
	if !settings.AutoSync && !force {
		return &types.SyncAllResult{Error: MsgAutoSyncDisabled}
	}

	e.allMu.Lock()
	defer e.allMu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncAllDuration)

	servers, err := e.servers.List()
	if err != nil {
		return &types.SyncAllResult{Error: err.Error()}
	}
	if len(servers) == 0 {
		return &types.SyncAllResult{Results: map[string]*types.SyncResult{}, Error: MsgNoServers}
	}

	result := &types.SyncAllResult{Results: make(map[string]*types.SyncResult, len(servers))}
	for _, srv := range servers {
		if ctx.Err() != nil {
			result.Results[srv.ID] = &types.SyncResult{Error: ctx.Err().Error()}
			continue
		}
		r := e.Refresh(ctx, srv.ID, force)
		result.Results[srv.ID] = r
		if r.Success {
			result.Success = true
		}
	}

	e.logger.Info().
		Int("servers", len(servers)).
		Bool("success", result.Success).
		Dur("duration", timer.Duration()).
		Msg("Refreshed all servers")
	return result
}

// GetRules applies the user's freshness policy: with PreferLatest the
// appliance is always asked first, otherwise a fresh cache entry wins
func (e *Engine) GetRules(ctx context.Context, serverID string) *types.SyncResult {
	settings, err := e.settings.GetSettings()
	if err != nil {
		return &types.SyncResult{Error: err.Error()}
	}
	return e.Refresh(ctx, serverID, settings.PreferLatest)
}

// SetRules normalizes list, replaces the appliance's user rules with it and
// caches the result
func (e *Engine) SetRules(ctx context.Context, serverID string, list []string) *types.SyncResult {
	srv, err := e.servers.Get(serverID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &types.SyncResult{Error: MsgServerNotFound}
		}
		return &types.SyncResult{Error: err.Error()}
	}
	if srv.Password == "" {
		return &types.SyncResult{Error: MsgPasswordUnreadable}
	}

	return e.write(ctx, srv, rules.Normalize(list))
}

// AddRule appends rule to the appliance's current list
func (e *Engine) AddRule(ctx context.Context, serverID, rule string) *types.SyncResult {
	return e.modify(ctx, serverID, func(current []string) ([]string, bool) {
		return rules.Add(current, rule)
	})
}

// RemoveRule deletes rule from the appliance's current list
func (e *Engine) RemoveRule(ctx context.Context, serverID, rule string) *types.SyncResult {
	return e.modify(ctx, serverID, func(current []string) ([]string, bool) {
		return rules.Remove(current, rule)
	})
}

// modify reads the live list from the appliance, applies change and writes
// the result back. Cached rules are never used as the base of a write.
func (e *Engine) modify(ctx context.Context, serverID string, change func([]string) ([]string, bool)) *types.SyncResult {
	srv, err := e.servers.Get(serverID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &types.SyncResult{Error: MsgServerNotFound}
		}
		return &types.SyncResult{Error: err.Error()}
	}

	current, err := e.fetch(ctx, srv)
	if err != nil {
		return &types.SyncResult{Error: err.Error()}
	}

	updated, changed := change(rules.Normalize(current))
	if !changed {
		return e.store(serverID, updated)
	}
	return e.write(ctx, srv, updated)
}

func (e *Engine) write(ctx context.Context, srv *types.Server, list []string) *types.SyncResult {
	if err := e.appliance.SetRules(ctx, srv, list); err != nil {
		e.logger.Warn().Err(err).Str("server_id", srv.ID).Msg("Failed to write rules")
		return &types.SyncResult{Error: err.Error()}
	}

	e.broker.Publish(&events.Event{
		Type:     events.EventRulesUpdated,
		ServerID: srv.ID,
		Message:  fmt.Sprintf("%d rules", len(list)),
	})
	return e.store(srv.ID, list)
}

// Start begins the background auto-sync loop. The interval and the
// auto-sync switch are re-read from settings before every pass.
func (e *Engine) Start() {
	go e.run()
}

// Stop stops the background loop and cancels a pass in progress. It is safe
// to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

func (e *Engine) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-e.stopCh
		cancel()
	}()

	timer := time.NewTimer(e.interval())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			result := e.RefreshAll(ctx, false)
			if !result.Success && result.Error != "" && result.Error != MsgAutoSyncDisabled {
				e.logger.Warn().Str("error", result.Error).Msg("Auto-sync pass failed")
			}
			timer.Reset(e.interval())
		case <-e.stopCh:
			return
		}
	}
}

func (e *Engine) interval() time.Duration {
	settings, err := e.settings.GetSettings()
	if err != nil {
		settings = types.DefaultSettings()
	}
	settings.Normalize()
	return time.Duration(settings.SyncIntervalMinutes) * time.Minute
}
