package depcache

import (
	"context"
	"time"
)

// Get is the typed form of Manager.Get. A cached nil yields the zero V with ok=true.
func Get[V any](ctx context.Context, m Manager, key string) (v V, ok bool, err error) {
	raw, ok := m.Get(ctx, key)
	if !ok {
		return v, false, nil
	}
	v, err = as[V](key, raw)
	return v, err == nil, err
}

// GetOrCompute is the typed form of Manager.GetOrCompute.
func GetOrCompute[V any](ctx context.Context, m Manager, key string, fn func(ctx context.Context) (V, error), ttl time.Duration) (V, error) {
	raw, err := m.GetOrCompute(ctx, key, erase(fn), ttl)
	if err != nil {
		var zero V
		return zero, err
	}
	return as[V](key, raw)
}

// GetOrComputeAsync is the typed form of Manager.GetOrComputeAsync.
func GetOrComputeAsync[V any](ctx context.Context, m Manager, key string, fn func(ctx context.Context) (V, error), ttl time.Duration) <-chan TypedResult[V] {
	out := make(chan TypedResult[V], 1)
	in := m.GetOrComputeAsync(ctx, key, erase(fn), ttl)
	go func() {
		r := <-in
		if r.Err != nil {
			out <- TypedResult[V]{Err: r.Err}
			return
		}
		v, err := as[V](key, r.Value)
		out <- TypedResult[V]{Value: v, Err: err}
	}()
	return out
}

// TypedResult is delivered by the typed GetOrComputeAsync.
type TypedResult[V any] struct {
	Value V
	Err   error
}

func erase[V any](fn func(ctx context.Context) (V, error)) Producer {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func as[V any](key string, raw any) (V, error) {
	var zero V
	if raw == nil {
		return zero, nil
	}
	v, ok := raw.(V)
	if !ok {
		return zero, typeMismatch[V](key, raw)
	}
	return v, nil
}
