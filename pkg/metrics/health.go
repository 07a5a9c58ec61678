package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Probe states reported by /health and /ready
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// criticalComponents must be registered and healthy before Burrow is ready
var criticalComponents = []string{"storage", "api"}

// HealthStatus is the body of the /health and /ready probes
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Appliances map[string]string `json:"appliances,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

type state struct {
	healthy bool
	message string
}

func (s state) String() string {
	if s.healthy {
		return StatusHealthy
	}
	return StatusUnhealthy + ": " + s.message
}

// probeRegistry holds what the probes report. Components are Burrow's own
// moving parts; appliances are the servers the health monitor reaches.
type probeRegistry struct {
	mu         sync.RWMutex
	components map[string]state
	appliances map[string]state
	version    string
	started    time.Time
}

func newProbeRegistry() *probeRegistry {
	return &probeRegistry{
		components: make(map[string]state),
		appliances: make(map[string]state),
		started:    time.Now(),
	}
}

var probes = newProbeRegistry()

// SetVersion sets the version string for probe responses
func SetVersion(version string) {
	probes.mu.Lock()
	defer probes.mu.Unlock()
	probes.version = version
}

// RegisterComponent records the state of one of Burrow's components
func RegisterComponent(name string, healthy bool, message string) {
	probes.mu.Lock()
	defer probes.mu.Unlock()
	probes.components[name] = state{healthy: healthy, message: message}
}

// UpdateComponent changes the state of a registered component
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// SetApplianceHealth records whether the appliance behind serverID answers
// and exports it as burrow_appliance_up
func SetApplianceHealth(serverID string, healthy bool, message string) {
	probes.mu.Lock()
	probes.appliances[serverID] = state{healthy: healthy, message: message}
	probes.mu.Unlock()

	up := 0.0
	if healthy {
		up = 1
	}
	ApplianceUp.WithLabelValues(serverID).Set(up)
}

// RemoveAppliance forgets a server that is no longer configured
func RemoveAppliance(serverID string) {
	probes.mu.Lock()
	delete(probes.appliances, serverID)
	probes.mu.Unlock()

	ApplianceUp.DeleteLabelValues(serverID)
}

// appliancesLocked renders appliance states and counts the unreachable ones
func (r *probeRegistry) appliancesLocked() (map[string]string, int) {
	if len(r.appliances) == 0 {
		return nil, 0
	}
	out := make(map[string]string, len(r.appliances))
	down := 0
	for id, s := range r.appliances {
		out[id] = s.String()
		if !s.healthy {
			down++
		}
	}
	return out, down
}

// GetHealth is unhealthy when a component fails and degraded when only
// appliances are unreachable. Cached rules keep being served in the
// degraded state.
func GetHealth() HealthStatus {
	probes.mu.RLock()
	defer probes.mu.RUnlock()

	health := HealthStatus{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Components: make(map[string]string, len(probes.components)),
		Version:    probes.version,
		Uptime:     time.Since(probes.started).String(),
	}

	var failed []string
	for name, s := range probes.components {
		health.Components[name] = s.String()
		if !s.healthy {
			failed = append(failed, name)
		}
	}

	appliances, down := probes.appliancesLocked()
	health.Appliances = appliances

	switch {
	case len(failed) > 0:
		sort.Strings(failed)
		health.Status = StatusUnhealthy
		health.Message = fmt.Sprintf("component %s failing", failed[0])
	case down > 0:
		health.Status = StatusDegraded
		health.Message = fmt.Sprintf("%d of %d appliances unreachable", down, len(appliances))
	}
	return health
}

// GetReadiness is ready once the critical components are registered and
// healthy. Appliance states are reported but do not gate readiness.
func GetReadiness() HealthStatus {
	probes.mu.RLock()
	defer probes.mu.RUnlock()

	readiness := HealthStatus{
		Status:     StatusReady,
		Timestamp:  time.Now(),
		Components: make(map[string]string, len(criticalComponents)),
		Version:    probes.version,
		Uptime:     time.Since(probes.started).String(),
	}

	for _, name := range criticalComponents {
		s, ok := probes.components[name]
		switch {
		case !ok:
			readiness.Components[name] = "not registered"
		case !s.healthy:
			readiness.Components[name] = "not ready: " + s.message
		default:
			readiness.Components[name] = StatusReady
			continue
		}
		if readiness.Status == StatusReady {
			readiness.Status = StatusNotReady
			readiness.Message = "waiting for " + name
		}
	}

	readiness.Appliances, _ = probes.appliancesLocked()
	return readiness
}

func writeProbe(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HealthHandler serves /health. Degraded answers 200.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeProbe(w, code, health)
	}
}

// ReadyHandler serves /ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()
		code := http.StatusOK
		if readiness.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeProbe(w, code, readiness)
	}
}

// LivenessHandler serves /live, which answers 200 while the process runs
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		probes.mu.RLock()
		uptime := time.Since(probes.started)
		probes.mu.RUnlock()

		writeProbe(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": uptime.String(),
		})
	}
}
