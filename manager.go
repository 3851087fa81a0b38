package depcache

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/depcache/keylock"
	"github.com/unkn0wn-root/depcache/scope"
	"github.com/unkn0wn-root/depcache/store"
)

// nullValue marks a cached nil so it can be told apart from a miss.
// It is unexported: callers cannot store it themselves.
type nullValue struct{}

type manager struct {
	store      store.Store
	locks      *keylock.Registry
	log        Logger
	hooks      Hooks
	defaultTTL time.Duration

	// serializes RemoveByPattern/Clear
	patternMu sync.Mutex
}

func newManager(opts Options) (*manager, error) {
	m := &manager{
		locks:      keylock.New(opts.LockShards),
		defaultTTL: opts.DefaultTTL,
	}
	m.log = coalesce[Logger](opts.Logger, NopLogger{})
	m.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})

	if opts.Store != nil {
		m.store = opts.Store
	} else {
		m.store = store.NewMemory(store.Options{
			Provider:        opts.Provider,
			CleanupInterval: coalesce[time.Duration](opts.CleanupInterval, defaultSweep),
			OnRemoved:       m.onRemoved,
		})
	}
	return m, nil
}

func (m *manager) IsDistributed() bool { return false }

func (m *manager) Close(ctx context.Context) error {
	return m.store.Close(ctx)
}

func (m *manager) Get(ctx context.Context, key string) (any, bool) {
	v, ok := m.tryGet(ctx, key)
	m.observe(key, ok)
	return v, ok
}

// tryGet reads key and, on a hit, records it as a dependency of the build
// running in ctx (if any).
func (m *manager) tryGet(ctx context.Context, key string) (any, bool) {
	v, ok := m.store.Get(key)
	if !ok {
		return nil, false
	}
	scope.Propagate(ctx, key)
	if _, isNull := v.(nullValue); isNull {
		return nil, true
	}
	return v, true
}

func (m *manager) observe(key string, hit bool) {
	if hit {
		m.hooks.Hit(key)
	} else {
		m.hooks.Miss(key)
	}
}

func (m *manager) GetOrCompute(ctx context.Context, key string, fn Producer, ttl time.Duration) (any, error) {
	if fn == nil {
		return nil, ErrNilProducer
	}
	v, ok := m.tryGet(ctx, key)
	m.observe(key, ok)
	if ok {
		return v, nil
	}
	// The key lock is not reentrant; waiting on it here would never return.
	if scope.Active(ctx, key) {
		return nil, ErrRecursiveCompute
	}

	unlock, err := m.locks.LockContext(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// someone else may have stored it while we waited
	if v, ok := m.tryGet(ctx, key); ok {
		m.hooks.Hit(key)
		return v, nil
	}
	return m.compute(ctx, key, fn, ttl)
}

func (m *manager) GetOrComputeAsync(ctx context.Context, key string, fn Producer, ttl time.Duration) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- Result{Err: &PanicError{Key: key, Value: r}}
			}
		}()
		v, err := m.GetOrCompute(ctx, key, fn, ttl)
		out <- Result{Value: v, Err: err}
	}()
	return out
}

// compute runs fn inside a new scope for key. The caller holds key's lock.
func (m *manager) compute(ctx context.Context, key string, fn Producer, ttl time.Duration) (v any, err error) {
	sctx, sc := scope.Begin(ctx, key)
	completed := false
	defer func() {
		if completed {
			sc.End()
			return
		}
		sc.Abort()
		if r := recover(); r != nil {
			m.hooks.ComputeFailed(key, &PanicError{Key: key, Value: r})
			m.log.Warn("producer panicked", Fields{"key": key, "panic": r})
			// the deferred unlock in GetOrCompute still runs
			panic(r)
		}
	}()

	start := time.Now()
	v, err = fn(sctx)
	if err != nil {
		m.hooks.ComputeFailed(key, err)
		m.log.Debug("producer failed", Fields{"key": key, "err": err})
		return nil, err
	}
	completed = true

	deps := sc.Dependencies()
	if perr := m.Put(key, v, ttl, deps...); perr != nil {
		m.hooks.StoreRejected(key, perr)
		m.log.Debug("computed value not stored", Fields{"key": key, "err": perr, "deps": len(deps)})
	}
	elapsed := time.Since(start)
	m.hooks.Computed(key, len(deps), elapsed)
	m.log.Debug("computed", Fields{"key": key, "deps": len(deps), "elapsed": elapsed})
	return v, nil
}

func (m *manager) Put(key string, value any, ttl time.Duration, dependsOn ...string) error {
	if value == nil {
		value = nullValue{}
	}
	return m.store.Set(key, value, m.expiresAt(ttl), dependsOn)
}

func (m *manager) expiresAt(ttl time.Duration) time.Time {
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (m *manager) Contains(key string) bool { return m.store.Contains(key) }

func (m *manager) Remove(key string) bool { return m.store.Remove(key) }

func (m *manager) Dependencies(key string) ([]string, bool) {
	return m.store.Dependencies(key)
}

func (m *manager) Keys(pattern string) ([]string, error) {
	match, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	all := m.store.Keys()
	if match == nil {
		return all, nil
	}
	out := all[:0]
	for _, k := range all {
		if match.MatchString(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *manager) RemoveByPattern(pattern string) (int, error) {
	m.patternMu.Lock()
	defer m.patternMu.Unlock()

	keys, err := m.Keys(pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n := m.store.RemoveAll(keys)
	m.log.Debug("removed by pattern", Fields{"pattern": pattern, "count": n})
	return n, nil
}

func (m *manager) Clear() int {
	n, _ := m.RemoveByPattern("*")
	return n
}

func (m *manager) GetHashSet(ctx context.Context, key string, acquirer SetAcquirer) (*Set, error) {
	return GetOrCompute(ctx, m, key, func(ctx context.Context) (*Set, error) {
		set := NewSet()
		if acquirer == nil {
			return set, nil
		}
		items, err := acquirer(ctx)
		if err != nil {
			return nil, err
		}
		if items != nil {
			set.AddRange(items)
		}
		return set, nil
	}, NoExpiration)
}

func (m *manager) onRemoved(key string, reason store.Reason) {
	m.hooks.Removed(key, reason)
	if reason == store.DependencyChanged {
		m.log.Debug("removed depending entry", Fields{"key": key})
	}
}
