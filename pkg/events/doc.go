/*
Package events provides an in-memory event broker for Burrow.

Components publish state changes (a server saved, rules refreshed, a stale
cache served) to a Broker, and any number of subscribers receive them on
buffered channels. `burrow serve` logs every event and streams them to
clients of GET /api/v1/events.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  Publisher → Event Channel (buffer: 100)                   │
	│       ↓                                                    │
	│  Broadcast Loop                                            │
	│       ↓                                                    │
	│  Subscriber Channels (buffer: 50 each)                     │
	└────────────────────────────────────────────────────────────┘

Delivery is best effort. A subscriber whose buffer is full misses the event;
the publisher is never blocked by a slow subscriber.

# Event Types

	server.saved               credentials stored or updated
	server.deleted             server and its rule cache removed
	credentials.migrated       legacy plaintext password re-encrypted
	credentials.undecryptable  stored password could not be decrypted
	rules.refreshed            rules fetched from the appliance and cached
	rules.stale                fetch failed, stale cache served
	rules.failed               fetch failed with no cache to fall back to
	rules.updated              rule list written to the appliance
	settings.saved             settings changed
	cache.cleared              one or all rule cache entries dropped

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&events.Event{
		Type:     events.EventRulesRefreshed,
		ServerID: id,
		Message:  "42 rules",
	})

	for ev := range sub {
		fmt.Println(ev.Type, ev.ServerID)
	}

Publishing to a nil *Broker is a no-op, which lets CLI commands run the same
code paths without starting a broker.
*/
package events
