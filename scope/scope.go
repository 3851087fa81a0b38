// Package scope tracks in-flight cache builds along a call chain.
//
// A Scope is opened for the key being computed and travels with the
// context.Context handed to the producer. Every cache read made with that
// context records the read key as a dependency of the innermost scope. When a
// nested scope ends, its dependencies and its own key are folded into the
// parent, so an outer build ends up depending on everything its nested builds
// read, transitively.
package scope

import (
	"context"
	"slices"
	"sync"
)

type ctxKey struct{}

// Scope is one in-flight build. It is safe for concurrent use: a producer may
// fan out goroutines that share its context.
type Scope struct {
	key    string
	parent *Scope

	mu     sync.Mutex
	deps   map[string]struct{}
	closed bool
}

// Begin opens a scope for key below the current one (if any) and returns the
// context carrying it. The caller must End or Abort the scope.
func Begin(ctx context.Context, key string) (context.Context, *Scope) {
	s := &Scope{key: key, parent: Current(ctx)}
	return context.WithValue(ctx, ctxKey{}, s), s
}

// Current returns the innermost scope carried by ctx, or nil.
func Current(ctx context.Context) *Scope {
	s, _ := ctx.Value(ctxKey{}).(*Scope)
	return s
}

// Propagate records key as a dependency of the current scope.
// It is a no-op when ctx carries no scope.
func Propagate(ctx context.Context, key string) {
	if s := Current(ctx); s != nil {
		s.add(key)
	}
}

// Active reports whether key is being built anywhere up the chain of ctx.
func Active(ctx context.Context, key string) bool {
	for s := Current(ctx); s != nil; s = s.parent {
		if s.key == key {
			return true
		}
	}
	return false
}

// Depth returns the number of nested scopes carried by ctx.
func Depth(ctx context.Context) int {
	n := 0
	for s := Current(ctx); s != nil; s = s.parent {
		n++
	}
	return n
}

func (s *Scope) Key() string { return s.key }

func (s *Scope) Parent() *Scope { return s.parent }

// Dependencies returns the keys recorded so far, sorted. The scope's own key
// is never part of the result.
func (s *Scope) Dependencies() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.deps))
	for k := range s.deps {
		out = append(out, k)
	}
	s.mu.Unlock()
	slices.Sort(out)
	return out
}

// End closes the scope and folds its dependencies plus its own key into the
// parent. Safe to call more than once.
func (s *Scope) End() { s.close(true) }

// Abort closes the scope after a failed build. Dependencies still reach the
// parent but the scope's own key does not: nothing was stored under it.
func (s *Scope) Abort() { s.close(false) }

func (s *Scope) close(includeSelf bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	deps := s.deps
	s.deps = nil
	s.mu.Unlock()

	if s.parent == nil {
		return
	}
	s.parent.merge(deps, includeSelf, s.key)
}

func (s *Scope) add(key string) {
	if key == s.key {
		return
	}
	s.mu.Lock()
	if !s.closed {
		if s.deps == nil {
			s.deps = make(map[string]struct{})
		}
		s.deps[key] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *Scope) merge(deps map[string]struct{}, includeKey bool, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.deps == nil {
		s.deps = make(map[string]struct{}, len(deps)+1)
	}
	for k := range deps {
		if k != s.key {
			s.deps[k] = struct{}{}
		}
	}
	if includeKey && key != s.key {
		s.deps[key] = struct{}{}
	}
}
