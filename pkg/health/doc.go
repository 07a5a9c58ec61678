/*
Package health checks whether managed appliances answer their control API.

# Architecture

	┌───────────────────────────────────────────────┐
	│                    Monitor                    │
	│  every Interval: list servers, probe each one │
	└──────────────────────┬────────────────────────┘
	                       │
	                       ▼
	┌───────────────────────────────────────────────┐
	│              Checker interface                │
	│  • Check(ctx) Result                          │
	│  • Type() CheckType                           │
	└──────────────────────┬────────────────────────┘
	                       │
	                       ▼
	              ApplianceChecker
	                       │
	                       ▼
	       client.Probe: GET /control/status,
	       one attempt, no de-duplication

ApplianceChecker is also used on its own by the testConnection operation,
which checks credentials before a server is saved.

# Results

A Result carries a user-facing Message rather than a raw error:

	401, 403          Authentication failed: check username and password
	other non-2xx     Appliance answered HTTP <code>
	timeout           Connection timed out
	not a JSON object Host answered but is not an AdGuard Home control API
	anything else     Connection failed: <error>

An appliance that answers but reports its DNS server as stopped is still
healthy; the message says so.

# Status Tracking

Status follows the usual consecutive-failure rule: one success marks the
appliance healthy, Retries consecutive failures mark it unhealthy. Update
reports transitions, and the Monitor logs them and publishes a server.health
event. Statuses of deleted servers are dropped on the next pass.

A server whose stored password could not be decrypted is not probed, since
the appliance would only answer 401. It is marked unhealthy at once with
credentials.MsgPasswordUnreadable.

Every pass also feeds the /health probe and burrow_appliance_up through
metrics.SetApplianceHealth.

# Thread Safety

Monitor is safe for concurrent use. Snapshot returns copies. Stop may be
called more than once.
*/
package health
