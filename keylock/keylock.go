// Package keylock provides per-key mutual exclusion.
//
// Every key maps to a weighted semaphore of size one. Blocking (Lock) and
// cancellable (LockContext) acquirers share that semaphore, so they exclude
// each other. Locks are created on first use and reclaimed once nobody holds
// or waits on them. Locks are not reentrant: acquiring a key twice from the
// same call chain blocks forever.
package keylock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"
)

const DefaultShards = 32

// Unlock releases a held key lock. Calling it more than once is a no-op.
type Unlock func()

type entry struct {
	sem  *semaphore.Weighted
	refs int // holders + waiters; guarded by shard.mu
}

type shard struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// Registry issues key locks. The zero value is not usable; call New.
type Registry struct {
	shards []*shard
	mask   uint64
}

// New creates a registry with n shards (rounded up to a power of two).
// n <= 0 uses DefaultShards.
func New(n int) *Registry {
	if n <= 0 {
		n = DefaultShards
	}
	size := 1
	for size < n {
		size <<= 1
	}
	r := &Registry{
		shards: make([]*shard, size),
		mask:   uint64(size - 1),
	}
	for i := range r.shards {
		r.shards[i] = &shard{locks: make(map[string]*entry)}
	}
	return r
}

func (r *Registry) shard(key string) *shard {
	return r.shards[xxhash.Sum64String(key)&r.mask]
}

// Lock blocks until the lock for key is held. It cannot be cancelled.
func (r *Registry) Lock(key string) Unlock {
	s, e := r.ref(key)
	// Acquire with a background context only fails on ctx.Done.
	_ = e.sem.Acquire(context.Background(), 1)
	return r.unlocker(s, key, e)
}

// LockContext waits for the lock for key until ctx is done.
// On cancellation it returns ctx.Err() and does not hold the lock.
func (r *Registry) LockContext(ctx context.Context, key string) (Unlock, error) {
	s, e := r.ref(key)
	if err := e.sem.Acquire(ctx, 1); err != nil {
		r.unref(s, key, e)
		return nil, err
	}
	return r.unlocker(s, key, e), nil
}

// TryLock acquires the lock for key only if it is free.
func (r *Registry) TryLock(key string) (Unlock, bool) {
	s, e := r.ref(key)
	if !e.sem.TryAcquire(1) {
		r.unref(s, key, e)
		return nil, false
	}
	return r.unlocker(s, key, e), true
}

// Len reports how many keys currently have a live lock entry.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.Lock()
		n += len(s.locks)
		s.mu.Unlock()
	}
	return n
}

func (r *Registry) ref(key string) (*shard, *entry) {
	s := r.shard(key)
	s.mu.Lock()
	e, ok := s.locks[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		s.locks[key] = e
	}
	e.refs++
	s.mu.Unlock()
	return s, e
}

func (r *Registry) unref(s *shard, key string, e *entry) {
	s.mu.Lock()
	e.refs--
	if e.refs == 0 && s.locks[key] == e {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}

func (r *Registry) unlocker(s *shard, key string, e *entry) Unlock {
	var done atomic.Bool
	return func() {
		if !done.CompareAndSwap(false, true) {
			return
		}
		e.sem.Release(1)
		r.unref(s, key, e)
	}
}
