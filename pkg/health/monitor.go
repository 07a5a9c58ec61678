package health

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/credentials"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Servers lists the appliances to monitor
type Servers interface {
	List() ([]*types.Server, error)
}

// Monitor probes every configured appliance on an interval and keeps a
// Status per server
type Monitor struct {
	servers Servers
	prober  Prober
	config  Config
	broker  *events.Broker
	logger  zerolog.Logger

	mu       sync.RWMutex
	statuses map[string]*Status

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a monitor. broker may be nil.
func NewMonitor(servers Servers, prober Prober, config Config, broker *events.Broker) *Monitor {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Retries <= 0 {
		config.Retries = defaults.Retries
	}
	return &Monitor{
		servers:  servers,
		prober:   prober,
		config:   config,
		broker:   broker,
		logger:   log.WithComponent("health"),
		statuses: make(map[string]*Status),
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic checks
func (m *Monitor) Start() {
	go m.run()
}

// Stop stops periodic checks. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-m.stopCh
		cancel()
	}()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	// Check immediately on start
	m.CheckAll(ctx)

	for {
		select {
		case <-ticker.C:
			m.CheckAll(ctx)
		case <-m.stopCh:
			return
		}
	}
}

// CheckAll probes every server once, one at a time, and drops the status
// of servers that no longer exist. Servers whose password could not be
// decrypted are marked unhealthy without a probe.
func (m *Monitor) CheckAll(ctx context.Context) {
	servers, err := m.servers.List()
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to list servers")
		return
	}

	seen := make(map[string]bool, len(servers))
	for _, srv := range servers {
		if ctx.Err() != nil {
			return
		}
		seen[srv.ID] = true

		if srv.Password == "" {
			m.record(srv.ID, Result{Message: credentials.MsgPasswordUnreadable, CheckedAt: time.Now()}, true)
			continue
		}
		result := NewApplianceChecker(m.prober, srv).WithTimeout(m.config.Timeout).Check(ctx)
		m.record(srv.ID, result, false)
	}

	m.mu.Lock()
	for id := range m.statuses {
		if !seen[id] {
			delete(m.statuses, id)
			metrics.RemoveAppliance(id)
		}
	}
	m.mu.Unlock()
}

// record applies result to the server's status. A permanent failure marks
// the server unhealthy without waiting for the retry threshold.
func (m *Monitor) record(serverID string, result Result, permanent bool) {
	config := m.config
	if permanent {
		config.Retries = 1
	}

	m.mu.Lock()
	status, ok := m.statuses[serverID]
	if !ok {
		status = NewStatus()
		m.statuses[serverID] = status
	}
	changed := status.Update(result, config)
	healthy := status.Healthy
	m.mu.Unlock()

	metrics.SetApplianceHealth(serverID, healthy, result.Message)

	if !changed {
		return
	}

	if healthy {
		m.logger.Info().Str("server_id", serverID).Msg("Appliance recovered")
	} else {
		m.logger.Warn().Str("server_id", serverID).Str("reason", result.Message).Msg("Appliance unhealthy")
	}
	m.broker.Publish(&events.Event{
		Type:     events.EventServerHealth,
		ServerID: serverID,
		Message:  result.Message,
		Metadata: map[string]string{"healthy": strconv.FormatBool(healthy)},
	})
}

// Snapshot returns a copy of every known status keyed by server ID
func (m *Monitor) Snapshot() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.statuses))
	for id, status := range m.statuses {
		out[id] = *status
	}
	return out
}

