/*
Package dns queries an appliance's own DNS listener to show how its
filtering answers a name.

checkHost asks the control API which rule would match. A lookup goes one
step further and sends a real query to the appliance on port 53, so the
user sees the answer clients on the network will get.

# Lookup Flow

	Lookup(srv, "ads.example", "A")
	       │
	       ├── host http://192.168.1.2:3000 ─▶ 192.168.1.2:53
	       │
	       ▼
	  gate.Once (rate limit + timeout, no retry)
	       │
	       ▼
	  miekg/dns Client.ExchangeContext
	       │
	       ├── REFUSED ───────────────────────▶ blocked, "refused"
	       ├── only 0.0.0.0 / :: ─────────────▶ blocked, "unspecified address"
	       ├── NXDOMAIN ──────────────────────▶ not blocked, rcode reported
	       └── anything else ─────────────────▶ not blocked

NXDOMAIN is the AdGuard Home answer in one of its blocking modes, but it is
also the answer for names that do not exist, so it is reported through the
rcode and left to the caller.

# Errors

Transport failures are wrapped in client.ErrNetwork so the API maps them
to the same status as control API failures. Gate timeouts surface as
gate.ErrTimedOut.

# Metrics

burrow_dns_lookups_total{result} counts blocked, allowed and failed
lookups.
*/
package dns
