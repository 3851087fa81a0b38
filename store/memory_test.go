package store

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu  sync.Mutex
	got map[string]Reason
}

func newRecorder() *recorder { return &recorder{got: make(map[string]Reason)} }

func (r *recorder) fn(key string, reason Reason) {
	r.mu.Lock()
	r.got[key] = reason
	r.mu.Unlock()
}

func (r *recorder) reason(key string) Reason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[key]
}

func newTestStore(t *testing.T, opts Options) *Memory {
	t.Helper()
	s := NewMemory(opts)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func mustSet(t *testing.T, s Store, key string, value any, deps ...string) {
	t.Helper()
	if err := s.Set(key, value, time.Time{}, deps); err != nil {
		t.Fatalf("Set(%q): %v", key, err)
	}
}

func TestSetGetRemove(t *testing.T) {
	rec := newRecorder()
	s := newTestStore(t, Options{OnRemoved: rec.fn})

	mustSet(t, s, "a", 1)
	if v, ok := s.Get("a"); !ok || v != 1 {
		t.Fatalf("Get = %v,%v", v, ok)
	}
	if !s.Remove("a") {
		t.Fatalf("Remove reported missing key")
	}
	if s.Remove("a") {
		t.Fatalf("second Remove reported present")
	}
	if s.Contains("a") {
		t.Fatalf("a still present")
	}
	if rec.reason("a") != Removed {
		t.Fatalf("reason = %v, want removed", rec.reason("a"))
	}
}

func TestRemoveCascadesTransitively(t *testing.T) {
	rec := newRecorder()
	s := newTestStore(t, Options{OnRemoved: rec.fn})

	mustSet(t, s, "c", "c")
	mustSet(t, s, "b", "b", "c")
	mustSet(t, s, "a", "a", "b")
	mustSet(t, s, "other", "o")

	s.Remove("c")

	for _, k := range []string{"a", "b", "c"} {
		if s.Contains(k) {
			t.Fatalf("%q should have been removed", k)
		}
	}
	if !s.Contains("other") {
		t.Fatalf("unrelated key removed")
	}
	if rec.reason("c") != Removed || rec.reason("b") != DependencyChanged || rec.reason("a") != DependencyChanged {
		t.Fatalf("unexpected reasons: %v", rec.got)
	}
	if n := len(s.dependents); n != 0 {
		t.Fatalf("reverse index not cleaned: %v", s.dependents)
	}
}

func TestDependencyCycleTerminates(t *testing.T) {
	s := newTestStore(t, Options{})
	mustSet(t, s, "a", 1)
	mustSet(t, s, "b", 2, "a")
	// a now depends on b, which depends on the previous a: overwriting a
	// drops b first, so the write is refused.
	if err := s.Set("a", 3, time.Time{}, []string{"b"}); !errors.Is(err, ErrDependencyMissing) {
		t.Fatalf("Set err = %v, want ErrDependencyMissing", err)
	}
	if s.Contains("a") || s.Contains("b") {
		t.Fatalf("expected both keys gone")
	}
}

func TestOverwriteInvalidatesDependents(t *testing.T) {
	s := newTestStore(t, Options{})
	mustSet(t, s, "b", 1)
	mustSet(t, s, "a", "from b", "b")

	mustSet(t, s, "b", 2)
	if s.Contains("a") {
		t.Fatalf("dependent survived overwrite of its dependency")
	}
	if v, _ := s.Get("b"); v != 2 {
		t.Fatalf("b = %v, want 2", v)
	}
}

func TestOverwriteReplacesDependencies(t *testing.T) {
	s := newTestStore(t, Options{})
	mustSet(t, s, "x", 1)
	mustSet(t, s, "y", 1)
	mustSet(t, s, "a", 1, "x")
	mustSet(t, s, "a", 2, "y")

	s.Remove("x")
	if !s.Contains("a") {
		t.Fatalf("a removed through a dependency it no longer has")
	}
	s.Remove("y")
	if s.Contains("a") {
		t.Fatalf("a should follow its new dependency")
	}
}

func TestSetWithMissingDependency(t *testing.T) {
	s := newTestStore(t, Options{})
	if err := s.Set("a", 1, time.Time{}, []string{"ghost"}); !errors.Is(err, ErrDependencyMissing) {
		t.Fatalf("err = %v, want ErrDependencyMissing", err)
	}
	if s.Contains("a") {
		t.Fatalf("entry stored despite missing dependency")
	}
}

func TestSelfAndDuplicateDependenciesIgnored(t *testing.T) {
	s := newTestStore(t, Options{})
	mustSet(t, s, "b", 1)
	mustSet(t, s, "a", 1, "a", "b", "b")
	deps, ok := s.Dependencies("a")
	if !ok || !slices.Equal(deps, []string{"b"}) {
		t.Fatalf("deps = %v,%v, want [b]", deps, ok)
	}
}

func TestExpirationIsLazyAndCascades(t *testing.T) {
	rec := newRecorder()
	s := newTestStore(t, Options{OnRemoved: rec.fn})

	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Set("b", 1, now.Add(time.Minute), nil); err != nil {
		t.Fatal(err)
	}
	mustSet(t, s, "a", 1, "b")
	if !s.Contains("b") {
		t.Fatalf("b should be present before expiry")
	}

	now = now.Add(2 * time.Minute)
	if s.Contains("b") {
		t.Fatalf("b should be expired")
	}
	if s.Contains("a") {
		t.Fatalf("a should be gone with its expired dependency")
	}
	if rec.reason("b") != Expired || rec.reason("a") != DependencyChanged {
		t.Fatalf("unexpected reasons: %v", rec.got)
	}
}

func TestDependentExpiresWithItsDependency(t *testing.T) {
	rec := newRecorder()
	s := newTestStore(t, Options{OnRemoved: rec.fn})

	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Set("c", 1, now.Add(time.Minute), nil); err != nil {
		t.Fatal(err)
	}
	mustSet(t, s, "b", 1, "c")
	mustSet(t, s, "a", 1, "b")
	mustSet(t, s, "other", 1)

	now = now.Add(2 * time.Minute)
	// only the outermost dependent is read; c and b are never touched
	if _, ok := s.Get("a"); ok {
		t.Fatalf("a served after its transitive dependency expired")
	}
	if got := s.Keys(); !slices.Equal(got, []string{"other"}) {
		t.Fatalf("Keys = %v, want [other]", got)
	}
	if rec.reason("c") != Expired || rec.reason("b") != DependencyChanged || rec.reason("a") != DependencyChanged {
		t.Fatalf("unexpected reasons: %v", rec.got)
	}
}

func TestOwnExpirationEarlierThanDependency(t *testing.T) {
	s := newTestStore(t, Options{})
	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Set("b", 1, now.Add(time.Hour), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("a", 1, now.Add(time.Minute), []string{"b"}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if s.Contains("a") || !s.Contains("b") {
		t.Fatalf("a should expire on its own, b should stay")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	s := newTestStore(t, Options{})
	now := time.Now()
	s.now = func() time.Time { return now }

	_ = s.Set("short", 1, now.Add(time.Second), nil)
	mustSet(t, s, "dep", 1, "short")
	mustSet(t, s, "forever", 1)

	now = now.Add(time.Hour)
	if n := s.Sweep(); n != 2 {
		t.Fatalf("Sweep removed %d, want 2", n)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestJanitorSweeps(t *testing.T) {
	s := newTestStore(t, Options{CleanupInterval: 10 * time.Millisecond})
	if err := s.Set("k", 1, time.Now().Add(20*time.Millisecond), nil); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("janitor never removed expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSetInThePastIsNotStored(t *testing.T) {
	s := newTestStore(t, Options{})
	if err := s.Set("k", 1, time.Now().Add(-time.Second), nil); err != nil {
		t.Fatal(err)
	}
	if s.Contains("k") {
		t.Fatalf("already-expired entry stored")
	}
}

func TestRemoveAllCountsCascadedKeys(t *testing.T) {
	s := newTestStore(t, Options{})
	mustSet(t, s, "order:1", 1)
	mustSet(t, s, "order:2", 2, "order:1")
	mustSet(t, s, "product:1", 3)

	if n := s.RemoveAll([]string{"order:1", "order:2", "missing"}); n != 2 {
		t.Fatalf("RemoveAll = %d, want 2", n)
	}
	if n := s.RemoveAll([]string{"order:1", "order:2"}); n != 0 {
		t.Fatalf("second RemoveAll = %d, want 0", n)
	}
	if got := s.Keys(); !slices.Equal(got, []string{"product:1"}) {
		t.Fatalf("Keys = %v", got)
	}
}

// lossyProvider forgets values on demand, like a bounded cache would.
type lossyProvider struct {
	mu     sync.Mutex
	m      map[string]any
	reject bool
	notify func(string)
}

func (p *lossyProvider) Get(key string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok
}

func (p *lossyProvider) Set(key string, value any, _ time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false
	}
	p.m[key] = value
	return true
}

func (p *lossyProvider) Del(key string) {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
}

func (p *lossyProvider) Close() error { return nil }

func (p *lossyProvider) NotifyEvict(fn func(string)) { p.notify = fn }

func (p *lossyProvider) evict(key string) {
	p.Del(key)
	if p.notify != nil {
		p.notify(key)
	}
}

func TestProviderLossIsTreatedAsEviction(t *testing.T) {
	rec := newRecorder()
	p := &lossyProvider{m: make(map[string]any)}
	s := newTestStore(t, Options{Provider: p, OnRemoved: rec.fn})

	mustSet(t, s, "b", 1)
	mustSet(t, s, "a", 1, "b")

	p.evict("b")

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("eviction did not cascade: %v", s.Keys())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rec.reason("b") != Evicted || rec.reason("a") != DependencyChanged {
		t.Fatalf("unexpected reasons: %v", rec.got)
	}
}

func TestKeysSkipsValuesLostByProvider(t *testing.T) {
	rec := newRecorder()
	p := &lossyProvider{m: make(map[string]any)}
	s := newTestStore(t, Options{Provider: p, OnRemoved: rec.fn})

	mustSet(t, s, "b", 1)
	mustSet(t, s, "a", 1, "b")
	mustSet(t, s, "kept", 1)

	// dropped without a notification, like a rejected admission
	p.Del("b")

	if got := s.Keys(); !slices.Equal(got, []string{"kept"}) {
		t.Fatalf("Keys = %v, want [kept]", got)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	if n := s.RemoveAll([]string{"a", "b"}); n != 0 {
		t.Fatalf("RemoveAll = %d, want 0", n)
	}
	if rec.reason("b") != Evicted || rec.reason("a") != DependencyChanged {
		t.Fatalf("unexpected reasons: %v", rec.got)
	}
}

func TestProviderRejection(t *testing.T) {
	p := &lossyProvider{m: make(map[string]any), reject: true}
	s := newTestStore(t, Options{Provider: p})
	if err := s.Set("k", 1, time.Time{}, nil); !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if s.Contains("k") {
		t.Fatalf("rejected entry present")
	}
}

func TestClosedStore(t *testing.T) {
	s := NewMemory(Options{})
	mustSet(t, s, "k", 1)
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Contains("k") {
		t.Fatalf("closed store still serves entries")
	}
	if err := s.Set("k", 1, time.Time{}, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
