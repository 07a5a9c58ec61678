/*
Package gate shapes outbound appliance calls.

Every request Burrow sends to an appliance goes through a Gate. The gate
protects both sides: appliances throttle aggressive clients, and home
networks drop packets.

# Composition

	caller
	  │
	  ▼
	Acquire ─────────── token bucket (Burst tokens, refilled over Window)
	  │
	  ▼
	de-duplicate ────── singleflight keyed by endpoint + parameters
	  │                 (reads only; empty key disables)
	  ▼
	┌─ Retry ──────────────────────────────────────────┐
	│   WithTimeout(attempt 0) ── fail ── wait base·2^0 │
	│   WithTimeout(attempt 1) ── fail ── wait base·2^1 │
	│   WithTimeout(attempt 2) ── fail ── last error    │
	└──────────────────────────────────────────────────┘

Rate limiting and de-duplication apply once to the whole retried call, not to
each attempt, so a slow appliance does not also consume tokens for retries.

# Rate Limiting

The bucket is an x/time/rate limiter with capacity Burst that refills at
Burst tokens per Window, one token at a time. Callers beyond the burst wait;
they are never rejected. Waiting honours context cancellation.

# De-duplication

Calls passing the same non-empty key while one is outstanding share its
result. The shared call runs detached from any one caller's cancellation, and
the key is forgotten as soon as it settles, success or failure. Operations
that change appliance state pass an empty key.

# Timeouts and Retries

Each attempt runs with its own cancellable context. When the timeout fires
the caller receives ErrTimedOut and the attempt's context is cancelled; a
result that arrives afterwards is discarded.

Every error is retried except cancellation of the caller's context. With the
default configuration a call makes at most three attempts, sleeping one and
then two seconds between them.

# Usage

	g := gate.New(gate.DefaultConfig())

	status, err := gate.Do(ctx, g, "status:"+host, func(ctx context.Context) (*Status, error) {
		return fetchStatus(ctx, host)
	})

	// A single bounded attempt, used for connection tests
	_, err = gate.Once(ctx, g, probe)
*/
package gate
