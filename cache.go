package voxcache

import (
	"container/list"
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/voxcache/codec"
	"github.com/unkn0wn-root/voxcache/internal/util"
)

type item[E Entry] struct {
	key   string
	entry E
	size  int64
}

type cache[E Entry] struct {
	kind     DataKind
	kindName string
	load     LoadFunc[E]
	log      Logger
	hooks    Hooks
	enabled  bool
	budget   int64
	sizing   Sizing
	timeInfo func(string) (TimeInfo, bool)

	tier      *tier
	ownsTier  bool
	closeOnce sync.Once

	mu         sync.Mutex
	order      *list.List // front = least recently used
	items      map[string]*list.Element
	maxEntries int // 0 until the first insertion, then fixed
	bytes      int64

	flight singleflight.Group
}

func newCache[E Entry](opts Options[E]) (*cache[E], error) {
	if opts.Load == nil {
		return nil, fmt.Errorf("voxcache: loader is required")
	}
	var zero E
	kind := zero.Kind()
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	if opts.ByteBudget < 0 {
		return nil, fmt.Errorf("voxcache: byte budget must be >= 0, got %d", opts.ByteBudget)
	}

	ch := &cache[E]{
		kind:     kind,
		kindName: kind.String(),
		load:     opts.Load,
		enabled:  !opts.Disabled,
		sizing:   opts.Sizing,
		timeInfo: opts.TimeInfo,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}

	// defaults
	ch.log = With(opts.Logger, Fields{"kind": ch.kindName})
	ch.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	ch.budget = coalesce[int64](opts.ByteBudget, DefaultByteBudget)

	if opts.Tier != nil {
		ch.tier = &tier{
			p:     opts.Tier,
			ttl:   coalesce(opts.TierTTL, defaultTierTTL),
			prims: coalesce[c.Codec[[]Primitive]](opts.PrimitiveCodec, c.JSON[[]Primitive]{}),
		}
		ch.ownsTier = true
	}
	return ch, nil
}

func (ch *cache[E]) Kind() DataKind { return ch.kind }

func (ch *cache[E]) Get(ctx context.Context, timeframe int, resourceID string) (E, error) {
	var zero E
	if err := ch.checkTimeframe(timeframe, resourceID); err != nil {
		return zero, err
	}
	key := util.CompositeKey(timeframe, resourceID)
	if e, ok := ch.touch(key); ok {
		ch.hooks.Hit(ch.kindName, key)
		return e, nil
	}
	ch.hooks.Miss(ch.kindName, key)

	if !ch.enabled {
		return ch.fetch(ctx, timeframe, resourceID, key)
	}

	// The shared load outlives any single waiter: a caller that gives up does not
	// cancel the fetch for the others, and the result still lands in the cache.
	loadCtx := context.WithoutCancel(ctx)
	res := ch.flight.DoChan(key, func() (any, error) {
		if e, ok := ch.touch(key); ok {
			return e, nil
		}
		if e, ok := ch.fromTier(loadCtx, key); ok {
			return ch.insert(loadCtx, key, e), nil
		}
		e, err := ch.fetch(loadCtx, timeframe, resourceID, key)
		if err != nil {
			return nil, err
		}
		return ch.insert(loadCtx, key, e), nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-res:
		if r.Shared {
			ch.hooks.LoadShared(ch.kindName, key)
		}
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(E), nil
	}
}

func (ch *cache[E]) Add(ctx context.Context, entry E) bool {
	if !ch.enabled {
		return false
	}
	key := util.CompositeKey(entry.Timeframe(), entry.ResourceID())
	ch.mu.Lock()
	if _, ok := ch.items[key]; ok {
		ch.mu.Unlock()
		return false
	}
	evicted := ch.insertLocked(key, entry)
	ch.mu.Unlock()

	ch.evicted(ctx, evicted)
	return true
}

func (ch *cache[E]) Peek(timeframe int, resourceID string) (E, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if el, ok := ch.items[util.CompositeKey(timeframe, resourceID)]; ok {
		return el.Value.(*item[E]).entry, true
	}
	var zero E
	return zero, false
}

func (ch *cache[E]) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.order.Len()
}

func (ch *cache[E]) MaxEntries() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.maxEntries
}

func (ch *cache[E]) Bytes() int64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.bytes
}

func (ch *cache[E]) Keys() []string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]string, 0, ch.order.Len())
	for el := ch.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*item[E]).key)
	}
	return out
}

func (ch *cache[E]) Purge() {
	ch.mu.Lock()
	n := ch.order.Len()
	ch.order.Init()
	ch.items = make(map[string]*list.Element)
	ch.bytes = 0
	ch.mu.Unlock()
	ch.log.Debug("cache purged", Fields{"dropped": n})
}

func (ch *cache[E]) Close(ctx context.Context) error {
	var err error
	ch.closeOnce.Do(func() {
		ch.Purge()
		if ch.tier != nil && ch.ownsTier {
			err = ch.tier.p.Close(ctx)
		}
	})
	return err
}

func (ch *cache[E]) checkTimeframe(timeframe int, resourceID string) error {
	if ch.timeInfo == nil {
		return nil
	}
	ti, ok := ch.timeInfo(resourceID)
	if !ok || ti.Contains(timeframe) {
		return nil
	}
	return fmt.Errorf("%w: %s %q timeframe %d not in [%d, %d]",
		ErrTimeframeOutOfRange, ch.kindName, resourceID, timeframe, ti.Start, ti.End)
}

// touch moves key to the most recently used position and returns its entry.
func (ch *cache[E]) touch(key string) (E, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	el, ok := ch.items[key]
	if !ok {
		var zero E
		return zero, false
	}
	ch.order.MoveToBack(el)
	return el.Value.(*item[E]).entry, true
}

func (ch *cache[E]) fetch(ctx context.Context, timeframe int, resourceID, key string) (E, error) {
	e, err := ch.load(ctx, timeframe, resourceID)
	if err != nil {
		var zero E
		ch.hooks.LoadFailed(ch.kindName, key, err)
		ch.log.Warn("load failed", Fields{"key": key, "err": err})
		return zero, &LoadError{Kind: ch.kind, Timeframe: timeframe, ResourceID: resourceID, Err: err}
	}
	return e, nil
}

// insert stores e under key unless another writer got there first, in which case the
// resident entry wins and is returned.
func (ch *cache[E]) insert(ctx context.Context, key string, e E) E {
	ch.mu.Lock()
	if el, ok := ch.items[key]; ok {
		ch.order.MoveToBack(el)
		resident := el.Value.(*item[E]).entry
		ch.mu.Unlock()
		return resident
	}
	evicted := ch.insertLocked(key, e)
	ch.mu.Unlock()

	ch.evicted(ctx, evicted)
	return e
}

type eviction[E Entry] struct {
	it     *item[E]
	reason string
}

// insertLocked must be called with mu held. The capacity check, eviction and insertion
// happen under one lock hold so len(items) <= maxEntries holds for every observer.
func (ch *cache[E]) insertLocked(key string, e E) []eviction[E] {
	size := e.Size()
	if ch.maxEntries == 0 {
		ch.maxEntries = deriveMaxEntries(ch.budget, size)
		ch.hooks.CapacityDerived(ch.kindName, ch.maxEntries, size)
		ch.log.Info("capacity derived", Fields{
			"maxEntries": ch.maxEntries, "sampleSize": size, "budget": ch.budget,
		})
	}

	var out []eviction[E]
	for ch.order.Len() >= ch.maxEntries {
		out = append(out, eviction[E]{it: ch.removeFrontLocked(), reason: "capacity"})
	}
	ch.items[key] = ch.order.PushBack(&item[E]{key: key, entry: e, size: size})
	ch.bytes += size

	if ch.sizing == SizeByBytes {
		for ch.bytes > ch.budget && ch.order.Len() > 1 {
			out = append(out, eviction[E]{it: ch.removeFrontLocked(), reason: "bytes"})
		}
	}
	return out
}

func (ch *cache[E]) removeFrontLocked() *item[E] {
	el := ch.order.Front()
	it := ch.order.Remove(el).(*item[E])
	delete(ch.items, it.key)
	ch.bytes -= it.size
	return it
}

// evicted reports evictions and spills them to the tier, outside the lock.
func (ch *cache[E]) evicted(ctx context.Context, ev []eviction[E]) {
	for _, x := range ev {
		ch.hooks.Evicted(ch.kindName, x.it.key, x.it.size, x.reason)
		ch.log.Debug("evicted", Fields{"key": x.it.key, "reason": x.reason})
		if ch.tier == nil {
			continue
		}
		if op, err := ch.tier.put(ctx, ch.kind, x.it.key, x.it.entry); err != nil {
			ch.hooks.TierError(ch.kindName, x.it.key, op, err)
			ch.log.Warn("tier put failed", Fields{"key": x.it.key, "err": err})
		}
	}
}

func (ch *cache[E]) fromTier(ctx context.Context, key string) (E, bool) {
	var zero E
	if ch.tier == nil {
		return zero, false
	}
	e, ok, op, err := ch.tier.get(ctx, ch.kind, key)
	if err != nil {
		ch.hooks.TierError(ch.kindName, key, op, err)
		ch.log.Warn("tier get failed", Fields{"key": key, "op": op, "err": err})
		return zero, false
	}
	if !ok {
		return zero, false
	}
	typed, ok := e.(E)
	if !ok {
		ch.hooks.TierError(ch.kindName, key, "decode", errEntryKindMismatch)
		return zero, false
	}
	ch.hooks.TierHit(ch.kindName, key)
	return typed, true
}

// deriveMaxEntries computes round(budget/size), at least 1. A zero-size sample gives
// no usable estimate, so the count is left unbounded.
func deriveMaxEntries(budget, size int64) int {
	if size <= 0 {
		return math.MaxInt
	}
	n := math.Round(float64(budget) / float64(size))
	switch {
	case n < 1:
		return 1
	case n >= float64(math.MaxInt):
		return math.MaxInt
	default:
		return int(n)
	}
}
