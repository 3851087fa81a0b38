package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/unkn0wn-root/depcache/provider"
)

const evictQueueLen = 1024

type entry struct {
	expiresAt time.Time // zero => never
	deps      []string
	// cappedBy is the dependency whose expiration bounds expiresAt, if any.
	cappedBy string
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type removal struct {
	key    string
	reason Reason
}

// Options configure a Memory store. The zero value is usable.
type Options struct {
	Provider        provider.Provider // nil => provider.NewMap()
	CleanupInterval time.Duration     // 0 => expired entries are only dropped on access
	OnRemoved       RemovedFunc
}

// Memory is the in-process Store. It keeps a reverse dependency index
// (dependency -> dependents) that every removal walks to cascade.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	dependents map[string]map[string]struct{}
	closed     bool

	provider  provider.Provider
	onRemoved RemovedFunc
	now       func() time.Time

	// background cleanup
	ticker    *time.Ticker
	evicted   chan string
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ Store = (*Memory)(nil)

func NewMemory(opts Options) *Memory {
	s := &Memory{
		entries:    make(map[string]*entry),
		dependents: make(map[string]map[string]struct{}),
		provider:   opts.Provider,
		onRemoved:  opts.OnRemoved,
		now:        time.Now,
	}
	if s.provider == nil {
		s.provider = provider.NewMap()
	}

	var tick <-chan time.Time
	if opts.CleanupInterval > 0 {
		s.ticker = time.NewTicker(opts.CleanupInterval)
		tick = s.ticker.C
	}
	if n, ok := s.provider.(provider.EvictionNotifier); ok {
		s.evicted = make(chan string, evictQueueLen)
		n.NotifyEvict(s.enqueueEviction)
	}
	if tick != nil || s.evicted != nil {
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go s.loop(tick)
	}
	return s
}

func (s *Memory) loop(tick <-chan time.Time) {
	defer s.wg.Done()
	for {
		select {
		case <-tick:
			s.Sweep()
		case key := <-s.evicted:
			s.dropEvicted(key)
		case <-s.stopCh:
			return
		}
	}
}

// enqueueEviction runs on the provider's goroutine; it must not block.
// A dropped notification is recovered lazily on the next read of key.
func (s *Memory) enqueueEviction(key string) {
	select {
	case s.evicted <- key:
	default:
	}
}

func (s *Memory) Set(key string, value any, expiresAt time.Time, dependsOn []string) error {
	now := s.now()
	var removed []removal

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	// Whatever was computed from the previous value is stale now.
	if _, ok := s.entries[key]; ok {
		removed = s.cascadeLocked(key, removed)
	}

	deps := make([]string, 0, len(dependsOn))
	var cappedBy string
	for _, d := range dependsOn {
		if d == key || slices.Contains(deps, d) {
			continue
		}
		de, ok := s.entries[d]
		if !ok || de.expired(now) {
			removed = s.removeLocked(key, DependencyChanged, removed)
			s.mu.Unlock()
			s.notify(removed)
			return ErrDependencyMissing
		}
		// A dependency's expiration only changes by overwriting it, which
		// cascades here anyway, so the earliest one bounds this entry.
		if !de.expiresAt.IsZero() && (expiresAt.IsZero() || de.expiresAt.Before(expiresAt)) {
			expiresAt = de.expiresAt
			cappedBy = d
		}
		deps = append(deps, d)
	}

	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = expiresAt.Sub(now)
		if ttl <= 0 {
			removed = s.removeLocked(key, Expired, removed)
			s.mu.Unlock()
			s.notify(removed)
			return nil
		}
	}

	if !s.provider.Set(key, value, ttl) {
		removed = s.removeLocked(key, Evicted, removed)
		s.mu.Unlock()
		s.notify(removed)
		return ErrRejected
	}

	if old, ok := s.entries[key]; ok {
		s.unlinkLocked(key, old.deps)
	}
	s.entries[key] = &entry{expiresAt: expiresAt, deps: deps, cappedBy: cappedBy}
	for _, d := range deps {
		set := s.dependents[d]
		if set == nil {
			set = make(map[string]struct{})
			s.dependents[d] = set
		}
		set[key] = struct{}{}
	}
	s.mu.Unlock()

	s.notify(removed)
	return nil
}

func (s *Memory) Get(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.RUnlock()
		return nil, false
	}
	if e.expired(s.now()) {
		s.mu.RUnlock()
		s.expire(key)
		return nil, false
	}
	v, ok := s.provider.Get(key)
	s.mu.RUnlock()
	if !ok {
		s.dropEvicted(key)
		return nil, false
	}
	return v, true
}

func (s *Memory) Contains(key string) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *Memory) Remove(key string) bool {
	s.mu.Lock()
	if _, ok := s.entries[key]; !ok {
		s.mu.Unlock()
		return false
	}
	removed := s.removeLocked(key, Removed, nil)
	s.mu.Unlock()

	s.notify(removed)
	return true
}

func (s *Memory) RemoveAll(keys []string) int {
	var removed []removal
	count := 0

	s.mu.Lock()
	gone := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := gone[k]; ok {
			count++
			continue
		}
		if _, ok := s.entries[k]; !ok {
			continue
		}
		from := len(removed)
		removed = s.removeLocked(k, Removed, removed)
		for _, r := range removed[from:] {
			gone[r.key] = struct{}{}
		}
		count++
	}
	s.mu.Unlock()

	s.notify(removed)
	return count
}

// Keys skips entries whose value the provider no longer holds and drops them
// (with their dependents) afterwards.
func (s *Memory) Keys() []string {
	now := s.now()
	var lost []string
	s.mu.RLock()
	out := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if e.expired(now) {
			continue
		}
		if _, ok := s.provider.Get(k); !ok {
			lost = append(lost, k)
			continue
		}
		out = append(out, k)
	}
	s.mu.RUnlock()

	for _, k := range lost {
		s.dropEvicted(k)
	}
	slices.Sort(out)
	return out
}

func (s *Memory) Dependencies(key string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		return nil, false
	}
	return slices.Clone(e.deps), true
}

// Len returns the number of entries, including expired ones not swept yet.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep removes every expired entry (and its dependents).
func (s *Memory) Sweep() int {
	now := s.now()
	var candidates []string

	s.mu.RLock()
	for k, e := range s.entries {
		if e.expired(now) {
			candidates = append(candidates, k)
		}
	}
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return 0
	}

	var removed []removal
	s.mu.Lock()
	for _, k := range candidates {
		if e, ok := s.entries[k]; ok && e.expired(now) {
			removed = s.removeLocked(s.expiryRootLocked(k, now), Expired, removed)
		}
	}
	s.mu.Unlock()

	s.notify(removed)
	return len(removed)
}

func (s *Memory) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			if s.ticker != nil {
				s.ticker.Stop()
			}
			s.wg.Wait()
		}
		s.mu.Lock()
		s.closed = true
		s.entries = make(map[string]*entry)
		s.dependents = make(map[string]map[string]struct{})
		s.mu.Unlock()
	})
	return s.provider.Close()
}

func (s *Memory) expire(key string) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || !e.expired(s.now()) {
		s.mu.Unlock()
		return
	}
	removed := s.removeLocked(s.expiryRootLocked(key, s.now()), Expired, nil)
	s.mu.Unlock()
	s.notify(removed)
}

// expiryRootLocked follows cappedBy links from key to the entry whose own
// expiration was reached, so that entry is reported as expired and key as a
// dependency change. Caller holds s.mu.
func (s *Memory) expiryRootLocked(key string, now time.Time) string {
	root := key
	for {
		e := s.entries[root]
		if e == nil || e.cappedBy == "" {
			return root
		}
		next, ok := s.entries[e.cappedBy]
		if !ok || !next.expired(now) {
			return root
		}
		root = e.cappedBy
	}
}

func (s *Memory) dropEvicted(key string) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	// the key may have been written again after the eviction was queued
	if _, ok := s.provider.Get(key); ok {
		s.mu.Unlock()
		return
	}
	reason := Evicted
	if now := s.now(); e.expired(now) {
		key, reason = s.expiryRootLocked(key, now), Expired
	}
	removed := s.removeLocked(key, reason, nil)
	s.mu.Unlock()
	s.notify(removed)
}

// removeLocked removes key with reason and cascades to its dependents
// breadth-first. Caller holds s.mu.
func (s *Memory) removeLocked(key string, reason Reason, out []removal) []removal {
	e, ok := s.entries[key]
	if !ok {
		return out
	}
	delete(s.entries, key)
	s.provider.Del(key)
	s.unlinkLocked(key, e.deps)
	out = append(out, removal{key: key, reason: reason})
	return s.cascadeLocked(key, out)
}

// cascadeLocked removes every entry depending on key, transitively.
// key itself is left alone. Caller holds s.mu.
func (s *Memory) cascadeLocked(key string, out []removal) []removal {
	queue := []string{key}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		set := s.dependents[k]
		delete(s.dependents, k)
		for d := range set {
			e, ok := s.entries[d]
			if !ok {
				continue
			}
			delete(s.entries, d)
			s.provider.Del(d)
			s.unlinkLocked(d, e.deps)
			out = append(out, removal{key: d, reason: DependencyChanged})
			queue = append(queue, d)
		}
	}
	return out
}

func (s *Memory) unlinkLocked(key string, deps []string) {
	for _, d := range deps {
		set, ok := s.dependents[d]
		if !ok {
			continue
		}
		delete(set, key)
		if len(set) == 0 {
			delete(s.dependents, d)
		}
	}
}

func (s *Memory) notify(removed []removal) {
	if s.onRemoved == nil {
		return
	}
	for _, r := range removed {
		s.onRemoved(r.key, r.reason)
	}
}
