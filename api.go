package depcache

import (
	"context"
	"iter"
	"time"

	pr "github.com/unkn0wn-root/depcache/provider"
	"github.com/unkn0wn-root/depcache/store"
)

// NoExpiration stores an entry that never expires, regardless of Options.DefaultTTL.
const NoExpiration time.Duration = -1

// Producer computes the value for a key on a cache miss. Cache reads made
// with ctx become dependencies of that key.
type Producer func(ctx context.Context) (any, error)

// SetAcquirer seeds a named set on first creation. A nil SetAcquirer creates an empty set.
type SetAcquirer func(ctx context.Context) (iter.Seq[string], error)

// Result is delivered by GetOrComputeAsync.
type Result struct {
	Value any
	Err   error
}

// Manager is the dependency-aware cache.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Single-flight: for a given key at most one Producer runs at a time.
//   - Reentrancy: a Producer must not (transitively) compute its own key;
//     doing so fails with ErrRecursiveCompute.
type Manager interface {
	// Get returns the cached value. A cached nil reports (nil, true).
	Get(ctx context.Context, key string) (any, bool)

	// GetOrCompute returns the cached value or runs fn under the key's lock
	// and stores its result with the dependencies fn read.
	// ttl: >0 expires after ttl; 0 uses Options.DefaultTTL; NoExpiration never expires.
	GetOrCompute(ctx context.Context, key string, fn Producer, ttl time.Duration) (any, error)

	// GetOrComputeAsync is GetOrCompute on its own goroutine. Exactly one
	// Result is delivered on the returned channel.
	GetOrComputeAsync(ctx context.Context, key string, fn Producer, ttl time.Duration) <-chan Result

	// Put stores value (nil is cached as an explicit absence). Removal or
	// expiration of any key in dependsOn removes key as well.
	Put(key string, value any, ttl time.Duration, dependsOn ...string) error

	Contains(key string) bool
	Remove(key string) bool

	// Dependencies returns the keys recorded for key, directly or through nested builds.
	Dependencies(key string) ([]string, bool)

	// Keys returns stored keys matching a case-insensitive glob (* and ?).
	// "*" matches everything; an empty pattern fails with ErrEmptyPattern.
	Keys(pattern string) ([]string, error)

	// RemoveByPattern removes every key matching pattern and returns how many
	// were removed. Concurrent pattern removals are serialized.
	RemoveByPattern(pattern string) (int, error)

	// Clear removes everything and returns how many keys were removed.
	Clear() int

	// GetHashSet returns the set stored at key, creating it from acquirer on first use.
	GetHashSet(ctx context.Context, key string, acquirer SetAcquirer) (*Set, error)

	// IsDistributed reports whether entries are shared across processes. Always false.
	IsDistributed() bool

	Close(ctx context.Context) error
}

// Options configure a Manager. All fields are optional.
type Options struct {
	// Store holds the entries. nil => store.NewMemory built from Provider and
	// CleanupInterval, reporting removals to Logger and Hooks.
	Store store.Store
	// Provider holds values for the default store. nil => provider.Map (unbounded).
	Provider pr.Provider

	Logger          Logger        // if nil, NopLogger is used
	Hooks           Hooks         // if nil, NopHooks is used
	DefaultTTL      time.Duration // used when ttl == 0; 0 => never expire
	CleanupInterval time.Duration // default store sweep interval; 0 => 1m
	LockShards      int           // 0 => keylock.DefaultShards
}

func New(opts Options) (Manager, error) {
	return newManager(opts)
}
