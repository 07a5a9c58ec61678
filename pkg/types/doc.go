/*
Package types defines the core data structures used throughout Burrow.

These types describe managed appliances, their cached rule lists, the
user-editable runtime settings, and the result envelopes returned by sync
operations. They carry JSON tags because every one of them crosses the
message boundary exposed by package api.

# Core Types

Appliances:
  - Server: an appliance with plaintext credentials, used in memory only
  - ServerRecord: the at-rest form; Password is raw JSON holding either an
    encrypted secret object or a legacy plaintext string

Rule cache:
  - RuleCacheEntry: one server's rule list with fetch time and TTL snapshot
  - RuleSet: the rule payload handed back to callers

Settings:
  - Settings: autoSync, preferLatest, cache TTL and sync interval
  - DefaultSettings: values used before the user saves anything

Results:
  - SyncResult: success, data, fromCache, warning, error
  - SyncAllResult: per-server results keyed by server ID

# Conventions

Times are stored as time.Time and serialized in RFC 3339. Rule slices are
copied when converted to a RuleSet so callers never alias cached data.
*/
package types
