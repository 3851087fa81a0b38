// Package store keeps cache entries together with their expiration and the
// keys they depend on.
//
// Removing an entry, for whatever reason, removes every entry that declared it
// as a dependency, and so on transitively. Values themselves live in a
// provider.Provider; the store owns the metadata and decides what exists.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDependencyMissing is returned by Set when a declared dependency is not
	// present (or already expired). Such an entry would be stale on arrival,
	// so it is not stored.
	ErrDependencyMissing = errors.New("store: dependency not present")
	// ErrRejected is returned by Set when the provider refused the value.
	ErrRejected = errors.New("store: value rejected by provider")
	ErrClosed   = errors.New("store: closed")
)

// Reason tells why an entry left the store.
type Reason uint8

const (
	// Removed: explicit Remove/RemoveAll.
	Removed Reason = iota + 1
	// Expired: absolute expiration reached.
	Expired
	// DependencyChanged: a dependency was removed, expired, evicted or overwritten.
	DependencyChanged
	// Evicted: the provider dropped the value on its own.
	Evicted
)

func (r Reason) String() string {
	switch r {
	case Removed:
		return "removed"
	case Expired:
		return "expired"
	case DependencyChanged:
		return "dependency_changed"
	case Evicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// RemovedFunc is notified once per entry that leaves the store. It is called
// after the store's internal lock is released and may call back into the store.
type RemovedFunc func(key string, reason Reason)

// Store is the expiring, dependency-aware key/value store used by depcache.
// Implementations must be safe for concurrent use.
type Store interface {
	// Set stores value under key. A zero expiresAt never expires. Removal or
	// expiration of any key in dependsOn removes key as well; key never
	// outlives the earliest expiration among dependsOn. Overwriting key
	// removes the entries that depended on its previous value.
	Set(key string, value any, expiresAt time.Time, dependsOn []string) error

	// Get returns the value stored under key, or (nil, false).
	Get(key string) (any, bool)

	// Remove deletes key (and its dependents). Reports whether key was present.
	Remove(key string) bool

	// RemoveAll deletes keys in one critical section and returns how many of
	// them were present, counting those removed by a cascade from an earlier key.
	RemoveAll(keys []string) int

	Contains(key string) bool

	// Keys returns every live key, sorted.
	Keys() []string

	// Dependencies returns the dependency keys recorded for key.
	Dependencies(key string) ([]string, bool)

	Close(ctx context.Context) error
}
