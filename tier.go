package voxcache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	c "github.com/unkn0wn-root/voxcache/codec"
	"github.com/unkn0wn-root/voxcache/internal/wire"
	pr "github.com/unkn0wn-root/voxcache/provider"
)

// tier is the optional second level behind a cache. Entries arrive on eviction and
// are read back on L1 misses, before the loader runs.
type tier struct {
	p     pr.Provider
	ttl   time.Duration
	prims c.Codec[[]Primitive]
}

func tierKey(kind DataKind, key string) string {
	return "vox:" + kind.String() + ":" + key
}

// put returns the failing operation name alongside the error.
func (t *tier) put(ctx context.Context, kind DataKind, key string, e Entry) (string, error) {
	f, err := frameOf(e, t.prims)
	if err != nil {
		return "encode", err
	}
	b, err := wire.Encode(f)
	if err != nil {
		return "encode", err
	}
	ok, err := t.p.Set(ctx, tierKey(kind, key), b, int64(len(b)), t.ttl)
	if err != nil {
		return "put", err
	}
	if !ok {
		return "put", errors.New("rejected by provider")
	}
	return "", nil
}

func (t *tier) get(ctx context.Context, kind DataKind, key string) (Entry, bool, string, error) {
	k := tierKey(kind, key)
	raw, ok, err := t.p.Get(ctx, k)
	if err != nil {
		return nil, false, "get", err
	}
	if !ok {
		return nil, false, "", nil
	}
	f, err := wire.Decode(raw)
	if err == nil {
		var e Entry
		e, err = entryOf(f, t.prims)
		if err == nil && e.Kind() == kind {
			return e, true, "", nil
		}
		if err == nil {
			err = errEntryKindMismatch
		}
	}
	_ = t.p.Del(ctx, k) // self-heal corrupt
	return nil, false, "decode", err
}

func frameOf(e Entry, prims c.Codec[[]Primitive]) (wire.Frame, error) {
	// Frames carry the timeframe as int32.
	tf := e.Timeframe()
	if tf < math.MinInt32 || tf > math.MaxInt32 {
		return wire.Frame{}, fmt.Errorf("%w: %d does not fit a tier frame", ErrTimeframeOutOfRange, tf)
	}
	f := wire.Frame{
		Kind:      byte(e.Kind()),
		Timeframe: int32(tf),
		Resource:  e.ResourceID(),
	}
	switch v := e.(type) {
	case ChannelEntry:
		f.Parts = []wire.Part{{Text: v.Payload.Text, Payload: v.Payload.Data}}
	case LatticeEntry:
		f.Parts = []wire.Part{{Text: v.Payload.Text, Payload: v.Payload.Data}}
	case MeshEntry:
		f.Parts = make([]wire.Part, len(v.Parts))
		for i, p := range v.Parts {
			f.Parts[i] = wire.Part{ID: int64(p.SegmentID), Text: p.Data.Text, Payload: p.Data.Data}
		}
	case PrimitiveEntry:
		b, err := prims.Encode(v.Primitives)
		if err != nil {
			return wire.Frame{}, err
		}
		f.Parts = []wire.Part{{Payload: b}}
	default:
		return wire.Frame{}, fmt.Errorf("%w: %T", ErrUnsupportedKind, e)
	}
	return f, nil
}

func entryOf(f wire.Frame, prims c.Codec[[]Primitive]) (Entry, error) {
	single := func() (wire.Part, error) {
		if len(f.Parts) != 1 {
			return wire.Part{}, wire.ErrCorrupt
		}
		return f.Parts[0], nil
	}
	// Payload slices alias the provider's buffer; copy so the entry owns its bytes.
	own := func(p wire.Part) Raw {
		return Raw{Data: append([]byte(nil), p.Payload...), Text: p.Text}
	}
	tf := int(f.Timeframe)

	switch DataKind(f.Kind) {
	case KindChannel:
		p, err := single()
		if err != nil {
			return nil, err
		}
		return ChannelEntry{TimeframeIndex: tf, ChannelID: f.Resource, Payload: own(p)}, nil
	case KindLattice:
		p, err := single()
		if err != nil {
			return nil, err
		}
		return LatticeEntry{TimeframeIndex: tf, SegmentationID: f.Resource, Payload: own(p)}, nil
	case KindMesh:
		parts := make([]MeshPart, len(f.Parts))
		for i, p := range f.Parts {
			parts[i] = MeshPart{SegmentID: int(p.ID), Data: own(p)}
		}
		return MeshEntry{TimeframeIndex: tf, SegmentationID: f.Resource, Parts: parts}, nil
	case KindPrimitive:
		p, err := single()
		if err != nil {
			return nil, err
		}
		list, err := prims.Decode(p.Payload)
		if err != nil {
			return nil, err
		}
		return PrimitiveEntry{TimeframeIndex: tf, SegmentationID: f.Resource, Primitives: list}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKind, f.Kind)
	}
}
