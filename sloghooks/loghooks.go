// Package sloghooks implements voxcache.Hooks on top of log/slog.
//
// Hit and miss are high-volume and sampled; everything else is logged as it happens.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/voxcache"
)

type Options struct {
	// Sampling to avoid floods; 0 = never, 1 = log all.
	HitEvery  uint64
	MissEvery uint64
	// Evictions are logged at debug level; 0/1 = log all.
	EvictEvery uint64
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr   atomic.Uint64
	missCtr  atomic.Uint64
	evictCtr atomic.Uint64
}

var _ voxcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 1 {
		return true
	}
	if n == 0 {
		return false
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(kind, key string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("voxcache.hit", "kind", kind, "key", key)
}

func (h *Hooks) Miss(kind, key string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("voxcache.miss", "kind", kind, "key", key)
}

func (h *Hooks) Evicted(kind, key string, size int64, reason string) {
	n := h.opts.EvictEvery
	if n == 0 {
		n = 1
	}
	if h.l == nil || !sample(n, &h.evictCtr) {
		return
	}
	h.l.Debug("voxcache.evicted",
		"kind", kind,
		"key", key,
		"size", size,
		"reason", reason)
}

func (h *Hooks) LoadFailed(kind, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("voxcache.load_failed",
		"kind", kind,
		"key", key,
		"err", err)
}

func (h *Hooks) LoadShared(kind, key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("voxcache.load_shared", "kind", kind, "key", key)
}

func (h *Hooks) CapacityDerived(kind string, maxEntries int, sampleSize int64) {
	if h.l == nil {
		return
	}
	h.l.Info("voxcache.capacity_derived",
		"kind", kind,
		"max_entries", maxEntries,
		"sample_size", sampleSize)
}

func (h *Hooks) TierHit(kind, key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("voxcache.tier_hit", "kind", kind, "key", key)
}

func (h *Hooks) TierError(kind, key, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("voxcache.tier_error",
		"kind", kind,
		"key", key,
		"op", op,
		"err", err)
}
