package voxcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	c "github.com/unkn0wn-root/voxcache/codec"
	pr "github.com/unkn0wn-root/voxcache/provider"
)

// Loaders are the per-kind fetch functions. A nil loader yields a cache that only
// serves entries added with Add; its misses fail with ErrNoLoader.
type Loaders struct {
	Channel   LoadFunc[ChannelEntry]
	Lattice   LoadFunc[LatticeEntry]
	Mesh      LoadFunc[MeshEntry]
	Primitive LoadFunc[PrimitiveEntry]
}

// StoreOptions configure all four caches alike. ByteBudget applies to each cache.
type StoreOptions struct {
	Loaders Loaders

	ByteBudget int64
	Sizing     Sizing
	Logger     Logger
	Hooks      Hooks
	Disabled   bool

	// TimeInfo, when set, bounds the valid timeframes of every resource.
	TimeInfo func(kind DataKind, resourceID string) (TimeInfo, bool)

	// Tier is shared by the four caches (keys are namespaced by kind) and closed by Store.Close.
	Tier           pr.Provider
	TierTTL        time.Duration
	PrimitiveCodec c.Codec[[]Primitive]
}

// Store bundles one cache per data kind behind a kind-dispatched API.
type Store struct {
	Channels   Cache[ChannelEntry]
	Lattices   Cache[LatticeEntry]
	Meshes     Cache[MeshEntry]
	Primitives Cache[PrimitiveEntry]

	tier pr.Provider
}

func NewStore(opts StoreOptions) (*Store, error) {
	s := &Store{tier: opts.Tier}
	var err error
	if s.Channels, err = newStoreCache(opts, opts.Loaders.Channel); err != nil {
		return nil, err
	}
	if s.Lattices, err = newStoreCache(opts, opts.Loaders.Lattice); err != nil {
		return nil, err
	}
	if s.Meshes, err = newStoreCache(opts, opts.Loaders.Mesh); err != nil {
		return nil, err
	}
	if s.Primitives, err = newStoreCache(opts, opts.Loaders.Primitive); err != nil {
		return nil, err
	}
	return s, nil
}

func newStoreCache[E Entry](opts StoreOptions, load LoadFunc[E]) (*cache[E], error) {
	var zero E
	kind := zero.Kind()
	if load == nil {
		load = func(context.Context, int, string) (E, error) {
			var none E
			return none, fmt.Errorf("%w for %s", ErrNoLoader, kind)
		}
	}
	o := Options[E]{
		Load:           load,
		ByteBudget:     opts.ByteBudget,
		Sizing:         opts.Sizing,
		Logger:         opts.Logger,
		Hooks:          opts.Hooks,
		Disabled:       opts.Disabled,
		Tier:           opts.Tier,
		TierTTL:        opts.TierTTL,
		PrimitiveCodec: opts.PrimitiveCodec,
	}
	if opts.TimeInfo != nil {
		o.TimeInfo = func(id string) (TimeInfo, bool) { return opts.TimeInfo(kind, id) }
	}
	ch, err := newCache(o)
	if err != nil {
		return nil, err
	}
	ch.ownsTier = false
	return ch, nil
}

// Get dispatches to the cache for kind.
func (s *Store) Get(ctx context.Context, kind DataKind, timeframe int, resourceID string) (Entry, error) {
	switch kind {
	case KindChannel:
		return asEntry(s.Channels.Get(ctx, timeframe, resourceID))
	case KindLattice:
		return asEntry(s.Lattices.Get(ctx, timeframe, resourceID))
	case KindMesh:
		return asEntry(s.Meshes.Get(ctx, timeframe, resourceID))
	case KindPrimitive:
		return asEntry(s.Primitives.Get(ctx, timeframe, resourceID))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}

func asEntry[E Entry](e E, err error) (Entry, error) {
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Add pre-populates the cache matching the entry's kind.
func (s *Store) Add(ctx context.Context, e Entry) (bool, error) {
	switch v := e.(type) {
	case ChannelEntry:
		return s.Channels.Add(ctx, v), nil
	case LatticeEntry:
		return s.Lattices.Add(ctx, v), nil
	case MeshEntry:
		return s.Meshes.Add(ctx, v), nil
	case PrimitiveEntry:
		return s.Primitives.Add(ctx, v), nil
	default:
		return false, fmt.Errorf("%w: %T", ErrUnsupportedKind, e)
	}
}

// Len is the total entry count across kinds.
func (s *Store) Len() int {
	return s.Channels.Len() + s.Lattices.Len() + s.Meshes.Len() + s.Primitives.Len()
}

// TierLen reports the number of spilled frames, when the tier can count them.
func (s *Store) TierLen() (int, bool) {
	if n, ok := s.tier.(pr.Counter); ok {
		return n.Len(), true
	}
	return 0, false
}

// Purge empties every cache, e.g. when a different entry is loaded.
func (s *Store) Purge() {
	s.Channels.Purge()
	s.Lattices.Purge()
	s.Meshes.Purge()
	s.Primitives.Purge()
}

func (s *Store) Close(ctx context.Context) error {
	errs := []error{
		s.Channels.Close(ctx),
		s.Lattices.Close(ctx),
		s.Meshes.Close(ctx),
		s.Primitives.Close(ctx),
	}
	if s.tier != nil {
		errs = append(errs, s.tier.Close(ctx))
	}
	return errors.Join(errs...)
}
