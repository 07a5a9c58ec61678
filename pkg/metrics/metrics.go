package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Inventory metrics
	ServersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_servers_total",
			Help: "Total number of managed appliances",
		},
	)

	RuleCacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_rule_cache_entries",
			Help: "Number of rule cache entries by freshness",
		},
		[]string{"state"},
	)

	CachedRulesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_cached_rules_total",
			Help: "Total number of rules held in the local cache",
		},
	)

	// Credential metrics
	CredentialsMigrated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_credentials_migrated_total",
			Help: "Total number of legacy plaintext passwords re-encrypted",
		},
	)

	CredentialDecryptFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_credential_decrypt_failures_total",
			Help: "Total number of stored passwords that could not be decrypted",
		},
	)

	// Request gate metrics
	GateCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_gate_calls_total",
			Help: "Total number of guarded outbound calls by outcome",
		},
		[]string{"outcome"},
	)

	GateRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_gate_retries_total",
			Help: "Total number of retry attempts after a failed call",
		},
	)

	GateDedupedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_gate_deduplicated_total",
			Help: "Total number of calls that shared an in-flight result",
		},
	)

	GateWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_gate_wait_duration_seconds",
			Help:    "Time spent waiting for a rate limiter token",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// Appliance client metrics
	ApplianceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_appliance_requests_total",
			Help: "Total number of appliance API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	ApplianceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_appliance_up",
			Help: "Whether the health monitor reaches an appliance (1) or not (0)",
		},
		[]string{"server_id"},
	)

	ApplianceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_appliance_request_duration_seconds",
			Help:    "Appliance API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Sync metrics
	SyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_sync_total",
			Help: "Total number of rule refreshes by result (cache, network, stale, failed)",
		},
		[]string{"result"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_sync_duration_seconds",
			Help:    "Duration of a single server rule refresh",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncAllDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_sync_all_duration_seconds",
			Help:    "Duration of a refresh across every server",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// DNS lookup metrics
	DNSLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_dns_lookups_total",
			Help: "Total number of DNS lookups against appliances by result",
		},
		[]string{"result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_api_requests_total",
			Help: "Total number of API requests by operation and status",
		},
		[]string{"op", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ServersTotal)
	prometheus.MustRegister(RuleCacheEntries)
	prometheus.MustRegister(CachedRulesTotal)
	prometheus.MustRegister(CredentialsMigrated)
	prometheus.MustRegister(CredentialDecryptFailures)
	prometheus.MustRegister(GateCallsTotal)
	prometheus.MustRegister(GateRetriesTotal)
	prometheus.MustRegister(GateDedupedTotal)
	prometheus.MustRegister(GateWaitDuration)
	prometheus.MustRegister(ApplianceRequestsTotal)
	prometheus.MustRegister(ApplianceRequestDuration)
	prometheus.MustRegister(ApplianceUp)
	prometheus.MustRegister(SyncTotal)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(SyncAllDuration)
	prometheus.MustRegister(DNSLookupsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
