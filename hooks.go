package depcache

import (
	"time"

	"github.com/unkn0wn-root/depcache/store"
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A read found the key (including a cached nil).
	Hit(key string)
	// A read did not find the key.
	Miss(key string)

	// A producer finished and its result was handed to the store.
	// deps is the number of dependency keys captured during the build.
	Computed(key string, deps int, elapsed time.Duration)
	// A producer returned an error (or panicked). Nothing was stored.
	ComputeFailed(key string, err error)

	// The store refused a value (provider pressure or a dependency vanished mid-build).
	StoreRejected(key string, err error)

	// An entry left the default store. Not called for a custom Options.Store.
	Removed(key string, reason store.Reason)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string)                          {}
func (NopHooks) Miss(string)                         {}
func (NopHooks) Computed(string, int, time.Duration) {}
func (NopHooks) ComputeFailed(string, error)         {}
func (NopHooks) StoreRejected(string, error)         {}
func (NopHooks) Removed(string, store.Reason)        {}
