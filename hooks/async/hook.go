// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{HitMissEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := depcache.New(depcache.Options{Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/depcache"
	"github.com/unkn0wn-root/depcache/store"
)

// Hooks forwards events to inner on background workers. When the queue is
// full, events are dropped instead of blocking the cache.
type Hooks struct {
	inner   depcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against sends on a closed q
	closed  bool
	dropped atomic.Uint64
}

var _ depcache.Hooks = (*Hooks)(nil)

func New(inner depcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(k string)  { h.try(func() { h.inner.Hit(k) }) }
func (h *Hooks) Miss(k string) { h.try(func() { h.inner.Miss(k) }) }
func (h *Hooks) Computed(k string, deps int, d time.Duration) {
	h.try(func() { h.inner.Computed(k, deps, d) })
}
func (h *Hooks) ComputeFailed(k string, err error) { h.try(func() { h.inner.ComputeFailed(k, err) }) }
func (h *Hooks) StoreRejected(k string, err error) { h.try(func() { h.inner.StoreRejected(k, err) }) }
func (h *Hooks) Removed(k string, r store.Reason)  { h.try(func() { h.inner.Removed(k, r) }) }
