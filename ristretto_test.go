package depcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/depcache/codec"
	"github.com/unkn0wn-root/depcache/provider/ristretto"
	"github.com/unkn0wn-root/depcache/store"
)

// ==============================
// Bounded provider
// ==============================

func newRistrettoManager(t *testing.T, maxCost int64, hooks Hooks) Manager {
	t.Helper()
	p, err := ristretto.New(ristretto.Config{
		NumCounters: 10 * maxCost,
		MaxCost:     maxCost,
		BufferItems: 64,
		Cost:        codec.SizeCost(codec.Msgpack{}),
	})
	if err != nil {
		t.Fatalf("ristretto.New: %v", err)
	}
	return newTestManager(t, func(o *Options) {
		o.Provider = p
		o.Hooks = hooks
	})
}

func TestRistrettoProviderDependencies(t *testing.T) {
	ctx := context.Background()
	m := newRistrettoManager(t, 1<<20, nil)

	mustPut(t, m, "rate", 2)
	v, err := GetOrCompute(ctx, m, "converted", func(ctx context.Context) (int, error) {
		r, _, err := Get[int](ctx, m, "rate")
		return 21 * r, err
	}, time.Minute)
	if err != nil || v != 42 {
		t.Fatalf("GetOrCompute = %v,%v", v, err)
	}

	m.Remove("rate")
	if m.Contains("converted") {
		t.Fatalf("dependent survived removal with ristretto provider")
	}
}

func TestRistrettoRefusalDropsDependents(t *testing.T) {
	rec := newRecHooks()
	m := newRistrettoManager(t, 64, rec)

	// Larger than the whole budget: the provider never admits it, and the
	// store forgets it (and anything built on it) on the next read.
	big := string(make([]byte, 256))
	if err := m.Put("big", big, 0); err != nil {
		if errors.Is(err, store.ErrRejected) {
			return
		}
		t.Fatalf("Put: %v", err)
	}
	mustPut(t, m, "derived", 2, "big")

	if m.Contains("big") {
		t.Fatalf("oversized value admitted")
	}
	if m.Contains("derived") {
		t.Fatalf("derived outlived its evicted dependency")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if r := rec.removed["derived"]; r != store.DependencyChanged {
		t.Fatalf("derived removal reason = %v", r)
	}
	if r := rec.removed["big"]; r != store.Evicted {
		t.Fatalf("big removal reason = %v, want evicted", r)
	}
}
