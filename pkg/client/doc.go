/*
Package client talks to DNS-filtering appliances over their HTTP control API.

A single Client serves every managed appliance. Each method takes the
*types.Server to call, and the Basic authentication header is built from that
server's credentials on every request, so a password change takes effect on
the next call.

# Architecture

	┌──────────────── caller (syncer, api) ────────────────┐
	│  c.UserRules(ctx, srv)   c.SetRules(ctx, srv, rules)  │
	└──────────────┬──────────────────────┬─────────────────┘
	               │ GET (keyed)          │ POST (unkeyed)
	               ▼                      ▼
	┌──────────────────────── gate.Gate ────────────────────┐
	│  rate limit → de-duplicate → retry(timeout(attempt))  │
	└──────────────────────────┬────────────────────────────┘
	                           ▼
	                    roundTrip (net/http)
	                           │
	                           ▼
	             validate: JSON object required,
	             fields coerced to safe defaults

# Endpoints

	Status           GET  /control/status
	FilteringStatus  GET  /control/filtering/status
	UserRules        GET  /control/filtering/status (user_rules)
	SetRules         POST /control/filtering/set_rules   {"rules": [...]}
	AddFilterURL     POST /control/filtering/add_url     {"name","url","whitelist"}
	RemoveFilterURL  POST /control/filtering/remove_url  {"url","whitelist"}
	SetProtection    POST /control/protection            {"enabled": bool}
	QueryLog         GET  /control/querylog?limit=N
	Stats            GET  /control/stats
	CheckHost        GET  /control/filtering/check_host?name=H
	Probe            GET  /control/status, single attempt

SetRules replaces the whole list; the appliance has no patch endpoint.

# Response Validation

Responses are decoded into a generic JSON value first. A top-level value
that is not an object fails with ErrMalformedResponse. Inside the object,
missing or mistyped fields are coerced: strings to "", numbers to 0, arrays
to empty slices with non-conforming elements skipped. Nothing from the
appliance reaches callers without passing through these parse functions.

# Errors

	ErrNetwork            transport failure (wrapped)
	*HTTPError            non-2xx status, with a truncated body
	ErrMalformedResponse  unexpected response shape
	gate.ErrTimedOut      attempt exceeded the gate timeout

IsPermanent reports 401, 403 and 404 answers. The transport retries them like
any other failure; callers use IsPermanent to stop asking the user to retry.
*/
package client
