/*
Package api implements the Burrow message boundary and its HTTP transport.

The Service is a closed set of named operations. Each takes a JSON argument
object and returns a JSON-encodable result. The Server exposes the Service
over HTTP next to health probes, Prometheus metrics and a Server-Sent
Events stream of broker events.

# Architecture

	┌──────────────── CLIENT (UI / curl / burrow CLI) ───────────────┐
	│   POST /api/v1/{op}  { ...args }                                │
	└──────────────────────────────┬──────────────────────────────────┘
	                               │ HTTP (default 127.0.0.1:8470)
	┌──────────────────────────────▼──────────────────────────────────┐
	│  Server (chi)                                                   │
	│    RequestID ─▶ RealIP ─▶ Recoverer ─▶ requestLogger ─▶ auth    │
	│                               │                                 │
	│  Service.Dispatch(op, args)   ▼                                 │
	│    decode + validate ─▶ handler                                 │
	│        │            │              │              │             │
	│        ▼            ▼              ▼              ▼             │
	│   credentials    syncer        appliance       health           │
	│     Store        Engine         Client        Monitor           │
	└─────────────────────────────────────────────────────────────────┘

# Operations

Servers:
  - getServers: list servers with decrypted passwords
  - saveServer {server}: create or update, validated
  - deleteServer {id}: true when a record was removed
  - testConnection {host, username, password}: probe without storing

Rules:
  - refreshServerRules {serverId, force}: sync result
  - refreshAllServers {force}: sync-all result
  - getServerRules {serverId}: sync result, honours preferLatest
  - setRules {serverId, rules}: replace the user rule list
  - addRule / removeRule {serverId, rule}: edit the live list
  - clearCache {serverId?}: drop one entry or all of them

Settings:
  - getSettings
  - saveSettings {settings}

Appliance:
  - getStatus, getFilteringStatus, getStats {serverId}
  - getQueryLog {serverId, limit}
  - checkHost {serverId, name}
  - toggleProtection {serverId, enabled}
  - addFilterUrl {serverId, name, url, whitelist}
  - removeFilterUrl {serverId, url, whitelist}
  - getServerHealth: last monitor result per server

Sync operations never fail at the boundary. Their outcome, including
"Server not found", is reported inside the result object.

# HTTP Envelope

Every answer is wrapped in a Response:

	{"ok": true,  "data": {...}}
	{"ok": false, "error": "Server not found"}

Errors map to status codes:

	unknown operation, missing server          404
	undecodable or invalid arguments           400
	appliance call timed out                   504
	appliance HTTP, network or format error    502
	anything else                              500

# Authentication

When a token is configured every /api/v1 request must send
"Authorization: Bearer <token>". The event stream also accepts ?token=
because browsers cannot set headers on an EventSource. Probes and /metrics
stay open.

# Events

GET /api/v1/events streams broker events:

	id: 6f1c...
	event: rules.refreshed
	data: {"id":"6f1c...","type":"rules.refreshed","serverId":"..."}

A comment line is written every 30 seconds to keep idle connections open.
The endpoint answers 503 when the process runs without a broker.

# Metrics

Dispatch records burrow_api_requests_total{op,status} and
burrow_api_request_duration_seconds{op}. Unknown operations are
counted under the "unknown" label so clients cannot grow the label set.
*/
package api
