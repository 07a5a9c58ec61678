/*
Package storage provides BoltDB-backed state persistence for Burrow.

The storage package implements the Store interface using BoltDB (bbolt) as the
underlying database. Every keyed collection lives in its own bucket and every
value is serialized as JSON, so the file can be inspected with any bbolt tool.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <dataDir>/burrow.db                │          │
	│  │  - Transactions: ACID with fsync            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                │          │
	│  │  servers     (server ID)  ServerRecord      │          │
	│  │  groups      reserved                        │          │
	│  │  settings    (fixed key)  Settings          │          │
	│  │  rule_cache  (server ID)  RuleCacheEntry    │          │
	│  │  secrets     device_secret, instance_id     │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Invariants

DeleteServer removes the server record and its rule_cache entry inside one
write transaction, so a crash can never leave an orphaned cache entry.

PutRuleCache overwrites the whole entry; there is no partial update of a rule
list.

GetSettings never fails for a fresh database: when nothing has been saved it
returns types.DefaultSettings().

Store never encrypts anything itself. Callers that persist credentials go
through package credentials, which guarantees the password value written here
is already ciphertext.

# Locking

bbolt holds an exclusive file lock while the database is open. NewBoltStore
waits up to two seconds for the lock and then fails, which is what a CLI
invocation sees while `burrow serve` is running against the same directory.
*/
package storage
