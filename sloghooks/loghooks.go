package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/depcache"
	"github.com/unkn0wn-root/depcache/store"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitMissEvery uint64
	RemovedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitMissCtr atomic.Uint64
	removedCtr atomic.Uint64
}

var _ depcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(key string) {
	if h.l == nil || !sample(h.opts.HitMissEvery, &h.hitMissCtr) {
		return
	}
	h.l.Debug("depcache.hit", "key", h.redact(key))
}

func (h *Hooks) Miss(key string) {
	if h.l == nil || !sample(h.opts.HitMissEvery, &h.hitMissCtr) {
		return
	}
	h.l.Debug("depcache.miss", "key", h.redact(key))
}

func (h *Hooks) Computed(key string, deps int, elapsed time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Debug("depcache.computed",
		"key", h.redact(key),
		"deps", deps,
		"elapsed", elapsed)
}

func (h *Hooks) ComputeFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("depcache.compute_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) StoreRejected(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("depcache.store_rejected",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) Removed(key string, reason store.Reason) {
	if h.l == nil || !sample(h.opts.RemovedEvery, &h.removedCtr) {
		return
	}
	h.l.Debug("depcache.removed",
		"key", h.redact(key),
		"reason", reason.String())
}
