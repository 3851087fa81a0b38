package depcache

import (
	"iter"
	"slices"
	"sync"
)

// Set is a concurrency-safe set of strings, stored in the cache by GetHashSet.
// Mutating a Set does not touch the cache entry holding it.
type Set struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

func NewSet(items ...string) *Set {
	s := &Set{items: make(map[string]struct{}, len(items))}
	for _, it := range items {
		s.items[it] = struct{}{}
	}
	return s
}

// Add reports whether item was newly added.
func (s *Set) Add(item string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item]; ok {
		return false
	}
	s.items[item] = struct{}{}
	return true
}

// AddRange adds every item of seq and returns how many were new.
func (s *Set) AddRange(seq iter.Seq[string]) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for it := range seq {
		if _, ok := s.items[it]; !ok {
			s.items[it] = struct{}{}
			n++
		}
	}
	return n
}

// Remove reports whether item was present.
func (s *Set) Remove(item string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item]; !ok {
		return false
	}
	delete(s.items, item)
	return true
}

func (s *Set) Contains(item string) bool {
	s.mu.RLock()
	_, ok := s.items[item]
	s.mu.RUnlock()
	return ok
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Set) Clear() {
	s.mu.Lock()
	clear(s.items)
	s.mu.Unlock()
}

// Members returns a sorted snapshot.
func (s *Set) Members() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.items))
	for it := range s.items {
		out = append(out, it)
	}
	s.mu.RUnlock()
	slices.Sort(out)
	return out
}

// All iterates over a sorted snapshot, so the set may be modified while iterating.
func (s *Set) All() iter.Seq[string] {
	return slices.Values(s.Members())
}
