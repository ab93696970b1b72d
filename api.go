package voxcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/voxcache/codec"
	pr "github.com/unkn0wn-root/voxcache/provider"
)

// LoadFunc fetches the payload for one (timeframe, resource) pair on a cache miss.
type LoadFunc[E Entry] func(ctx context.Context, timeframe int, resourceID string) (E, error)

// Sizing selects how the byte budget is enforced.
type Sizing uint8

const (
	// SizeBySample derives a fixed entry count from the first inserted entry.
	SizeBySample Sizing = iota
	// SizeByBytes also evicts until the running byte total is within budget.
	SizeByBytes
)

// Cache is a byte-budgeted LRU cache for one data kind.
// Safe for concurrent use.
type Cache[E Entry] interface {
	Kind() DataKind

	// Get returns the entry for (timeframe, resourceID), loading it on a miss.
	// Loader failures are returned as *LoadError and leave the cache untouched.
	Get(ctx context.Context, timeframe int, resourceID string) (E, error)

	// Add inserts a locally available entry. No-op (returns false) if the key is present.
	Add(ctx context.Context, entry E) bool

	// Peek returns a cached entry without touching recency or loading.
	Peek(timeframe int, resourceID string) (E, bool)

	Len() int
	// MaxEntries is 0 until the first insertion.
	MaxEntries() int
	// Bytes is the summed size of the cached entries.
	Bytes() int64
	// Keys lists cached keys from least to most recently used.
	Keys() []string

	// Purge drops all entries. MaxEntries is kept.
	Purge()
	Close(context.Context) error
}

// Options tune a single-kind cache. Only Load is required.
type Options[E Entry] struct {
	Load LoadFunc[E]

	ByteBudget int64  // 0 => DefaultByteBudget
	Sizing     Sizing // default SizeBySample
	Logger     Logger // if nil, NopLogger is used
	Hooks      Hooks  // if nil, NopHooks is used
	Disabled   bool   // every Get loads; nothing is stored

	// TimeInfo, when set, rejects timeframes outside the resource's range before loading.
	TimeInfo func(resourceID string) (TimeInfo, bool)

	// Tier receives evicted entries and is consulted on misses. Optional.
	Tier           pr.Provider
	TierTTL        time.Duration        // 0 => 10m
	PrimitiveCodec c.Codec[[]Primitive] // nil => JSON
}

func New[E Entry](opts Options[E]) (Cache[E], error) {
	return newCache[E](opts)
}
