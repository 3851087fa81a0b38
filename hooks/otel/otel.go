// Package otelhooks records depcache events as OpenTelemetry metrics.
//
//	hooks, err := otelhooks.New(otel.GetMeterProvider().Meter("depcache"))
//	if err != nil { ... }
//	cache, _ := depcache.New(depcache.Options{Hooks: hooks})
package otelhooks

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/depcache"
	"github.com/unkn0wn-root/depcache/store"
)

// Hooks is safe for concurrent use. Keys are never recorded as attributes:
// they are unbounded.
type Hooks struct {
	hits         metric.Int64Counter
	misses       metric.Int64Counter
	computes     metric.Int64Counter
	computeErrs  metric.Int64Counter
	rejected     metric.Int64Counter
	removals     metric.Int64Counter
	durationHist metric.Float64Histogram

	// one attribute set per reason, built once
	reasons map[store.Reason]metric.AddOption
}

var _ depcache.Hooks = (*Hooks)(nil)

func New(meter metric.Meter) (*Hooks, error) {
	h := &Hooks{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&h.hits, "depcache.hits", "Lookups served from the cache", "{lookup}"},
		{&h.misses, "depcache.misses", "Lookups not found in the cache", "{lookup}"},
		{&h.computes, "depcache.computes", "Values produced by a producer", "{compute}"},
		{&h.computeErrs, "depcache.compute.errors", "Producers that failed or panicked", "{error}"},
		{&h.rejected, "depcache.store.rejected", "Computed values the store refused", "{entry}"},
		{&h.removals, "depcache.removals", "Entries that left the cache", "{entry}"},
	}
	for _, c := range counters {
		ctr, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
		*c.dst = ctr
	}

	hist, err := meter.Float64Histogram(
		"depcache.compute.duration_ms",
		metric.WithDescription("Producer duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	h.durationHist = hist

	h.reasons = make(map[store.Reason]metric.AddOption, 4)
	for _, r := range []store.Reason{store.Removed, store.Expired, store.DependencyChanged, store.Evicted} {
		h.reasons[r] = metric.WithAttributes(attribute.String("reason", r.String()))
	}
	return h, nil
}

func (h *Hooks) Hit(string)  { h.hits.Add(context.Background(), 1) }
func (h *Hooks) Miss(string) { h.misses.Add(context.Background(), 1) }

func (h *Hooks) Computed(_ string, deps int, elapsed time.Duration) {
	ctx := context.Background()
	h.computes.Add(ctx, 1)
	h.durationHist.Record(ctx, float64(elapsed)/float64(time.Millisecond),
		metric.WithAttributes(attribute.Bool("has_deps", deps > 0)))
}

func (h *Hooks) ComputeFailed(string, error) { h.computeErrs.Add(context.Background(), 1) }
func (h *Hooks) StoreRejected(string, error) { h.rejected.Add(context.Background(), 1) }

func (h *Hooks) Removed(_ string, reason store.Reason) {
	opt, ok := h.reasons[reason]
	if !ok {
		opt = metric.WithAttributes(attribute.String("reason", reason.String()))
	}
	h.removals.Add(context.Background(), 1, opt)
}
