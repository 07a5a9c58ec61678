/*
Package cache keeps the last known rule list of every appliance.

Each server has at most one RuleCacheEntry, stored in the rule_cache bucket
and replaced wholesale on every successful fetch. A failed fetch never touches
the entry, so a stale copy is always available for fallback.

# Freshness

	fresh(entry) = now - entry.FetchedAt < settings.CacheTTLMinutes

The TTL is read from the current settings at query time. TTLMinutes on the
entry records the value in effect when it was written and is only kept for
diagnostics. An entry without a FetchedAt is never fresh.
*/
package cache
