/*
Package metrics provides Prometheus metrics and health probes for Burrow.

All metrics are package-level variables registered with the default
Prometheus registry at init, so any package can record into them without
passing a registry around. Handler exposes them in the text exposition
format.

# Metric Families

	Inventory (sampled by Collector)
	  burrow_servers_total                       gauge
	  burrow_rule_cache_entries{state}           gauge   fresh | stale
	  burrow_cached_rules_total                  gauge

	Credentials
	  burrow_credentials_migrated_total          counter
	  burrow_credential_decrypt_failures_total   counter

	Request gate
	  burrow_gate_calls_total{outcome}           counter
	  burrow_gate_retries_total                  counter
	  burrow_gate_deduplicated_total             counter
	  burrow_gate_wait_duration_seconds          histogram

	Appliance client
	  burrow_appliance_requests_total{endpoint,status}
	  burrow_appliance_request_duration_seconds{endpoint}
	  burrow_appliance_up{server_id}             gauge   set by the health monitor

	Sync engine
	  burrow_sync_total{result}                  counter   cache | network | stale | failed
	  burrow_sync_duration_seconds               histogram
	  burrow_sync_all_duration_seconds           histogram

	DNS lookups
	  burrow_dns_lookups_total{result}           counter   blocked | allowed | failed

	API
	  burrow_api_requests_total{op,status}       counter
	  burrow_api_request_duration_seconds{op}    histogram

# Collector

The Collector samples the store every 15 seconds and sets the inventory
gauges. Cache freshness uses the configured TTL, the same rule the sync
engine applies, so the gauges agree with what a read would return.

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

# Timers

	timer := metrics.NewTimer()
	result := engine.RefreshAll(ctx, false)
	timer.ObserveDuration(metrics.SyncAllDuration)

# Health Probes

Burrow's own components (storage, api) report with RegisterComponent and
UpdateComponent. The health monitor reports each appliance with
SetApplianceHealth and drops removed servers with RemoveAppliance.

  - /health: "healthy"; "degraded" (still 200) when only appliances are
    unreachable, since cached rules keep being served; "unhealthy" (503) when
    a component fails
  - /ready: 200 once storage and api are registered and healthy. Appliance
    states are listed but do not gate readiness.
  - /live: 200 while the process is running

	{
	  "status": "degraded",
	  "timestamp": "2026-01-02T10:00:00Z",
	  "components": {"storage": "healthy", "api": "healthy"},
	  "appliances": {"3f2a...": "unhealthy: Connection timed out"},
	  "message": "1 of 2 appliances unreachable",
	  "version": "v0.3.0",
	  "uptime": "3h12m5s"
	}
*/
package metrics
