/*
Package syncer keeps the local rule cache in step with the managed appliances.

The Engine is the only component that decides whether a caller sees cached or
live rules. It combines the credential store, the rule cache and the appliance
client, and it never returns an error: every outcome is a *types.SyncResult
the API layer can hand to the user as is.

# Refresh Flow

	Refresh(id, force)
	       │
	       ├── server missing ─────────────────▶ {success:false, "Server not found"}
	       │
	       ├── !force && cache fresh ──────────▶ {success:true, fromCache:true}
	       │
	       ▼
	  appliance.UserRules
	       │
	       ├── ok ──▶ normalize ──▶ cache.Set ─▶ {success:true}
	       │
	       └── failed
	              ├── any cache entry ─────────▶ {success:true, fromCache:true, warning}
	              └── no entry ────────────────▶ {success:false, error}

A stale entry is served regardless of age once the appliance is unreachable.
The warning names the fetch error so the user knows the data may be old.

# Policies

GetRules follows the PreferLatest setting. When set, every read goes to the
appliance first and only falls back to the cache on failure. Otherwise a
fresh cache entry is served and the appliance is asked only when the entry
has expired.

RefreshAll walks the servers in list order, one at a time. Without force it
returns "Auto-sync is disabled" when the user turned auto-sync off, before
any network call. Overall success means at least one server refreshed.

# Writes

SetRules normalizes the list, replaces the appliance's user rules and then
the cache entry. AddRule and RemoveRule read the live list from the
appliance first; a cached list is never used as the base of a write, so an
unreachable appliance fails the edit instead of overwriting newer rules.

# Background Sync

Start runs RefreshAll(force=false) every SyncIntervalMinutes. The interval
and the auto-sync switch are read from settings before each pass, so changes
apply without a restart. Stop cancels a pass in progress.

# Metrics

	burrow_sync_total{result}     cache, network, stale, failed
	burrow_sync_duration_seconds  per Refresh
	burrow_sync_all_duration_seconds
*/
package syncer
