// Package provider defines the value storage abstraction used by the depcache store.
//
// A Provider only holds values. Expiration bookkeeping, the dependency index and
// removal notifications belong to the store, which treats the provider as a plain
// map that may lose entries under memory pressure. A provider that drops an entry on
// its own (capacity eviction) should implement EvictionNotifier so the store can
// cascade the removal to dependent entries without waiting for the next read.
package provider

import "time"

// Provider is an in-process value store with optional TTL hints.
// Must be safe for concurrent use. Values are live Go values; they are never
// copied or serialized.
type Provider interface {
	// Get returns (value, true) on hit and (nil, false) on miss.
	Get(key string) (any, bool)

	// Set stores value. ttl <= 0 means no expiry. Returns false when the
	// provider refused the write (admission policy, pressure).
	Set(key string, value any, ttl time.Duration) bool

	// Del removes a key (best-effort, idempotent).
	Del(key string)

	// Close releases resources.
	Close() error
}

// EvictionNotifier is implemented by providers that drop entries on their own.
// fn must be cheap and must not call back into the provider.
type EvictionNotifier interface {
	NotifyEvict(fn func(key string))
}
