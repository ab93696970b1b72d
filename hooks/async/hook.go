// Package asynchook moves hook delivery off the cache's hot path.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{MissEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	store, _ := voxcache.NewStore(voxcache.StoreOptions{Hooks: hooks, ...})
//
// Events are dropped, not blocked on, when the queue is full. Dropped reports the count.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/voxcache"
)

type Hooks struct {
	inner   voxcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ voxcache.Hooks = (*Hooks)(nil)

func New(inner voxcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(kind, key string)        { h.try(func() { h.inner.Hit(kind, key) }) }
func (h *Hooks) Miss(kind, key string)       { h.try(func() { h.inner.Miss(kind, key) }) }
func (h *Hooks) LoadShared(kind, key string) { h.try(func() { h.inner.LoadShared(kind, key) }) }
func (h *Hooks) TierHit(kind, key string)    { h.try(func() { h.inner.TierHit(kind, key) }) }
func (h *Hooks) Evicted(kind, key string, size int64, reason string) {
	h.try(func() { h.inner.Evicted(kind, key, size, reason) })
}
func (h *Hooks) LoadFailed(kind, key string, err error) {
	h.try(func() { h.inner.LoadFailed(kind, key, err) })
}
func (h *Hooks) CapacityDerived(kind string, maxEntries int, sampleSize int64) {
	h.try(func() { h.inner.CapacityDerived(kind, maxEntries, sampleSize) })
}
func (h *Hooks) TierError(kind, key, op string, err error) {
	h.try(func() { h.inner.TierError(kind, key, op, err) })
}
