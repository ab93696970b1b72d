package annotations

import (
	"context"
	"strconv"
	"time"

	gc "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/voxcache"
	"github.com/unkn0wn-root/voxcache/segkey"
)

// Source fetches the records attached to a segmentation. Implementations are
// usually network clients; errors are absorbed by Lookup.
type Source interface {
	Records(ctx context.Context, segmentationID string, kind segkey.Kind, timeframe int) ([]Record, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, segmentationID string, kind segkey.Kind, timeframe int) ([]Record, error)

func (f SourceFunc) Records(ctx context.Context, segmentationID string, kind segkey.Kind, timeframe int) ([]Record, error) {
	return f(ctx, segmentationID, kind, timeframe)
}

type Options struct {
	Logger voxcache.Logger
	// Timeout bounds each source call. 0 => no extra deadline.
	Timeout time.Duration
	// CacheTTL memoizes successful results per (segmentation, kind, timeframe). 0 => off.
	CacheTTL time.Duration
}

// Lookup filters source records by timeframe and turns source failures into
// empty results.
type Lookup struct {
	src     Source
	log     voxcache.Logger
	timeout time.Duration
	memo    *gc.Cache
	flight  singleflight.Group
}

func NewLookup(src Source, opts Options) *Lookup {
	l := &Lookup{src: src, log: opts.Logger, timeout: opts.Timeout}
	if l.log == nil {
		l.log = voxcache.NopLogger{}
	}
	if opts.CacheTTL > 0 {
		l.memo = gc.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return l
}

// Find returns the records of the segmentation that apply at timeframe.
// It never fails: a source error is logged and yields nil.
func (l *Lookup) Find(ctx context.Context, segmentationID string, kind segkey.Kind, timeframe int) []Record {
	all := l.fetch(ctx, segmentationID, kind, timeframe)
	out := make([]Record, 0, len(all))
	for _, r := range all {
		if r.AppliesAt(timeframe) {
			out = append(out, r)
		}
	}
	return out
}

// Visible returns the keys of segments in the segmentation that have a non-hidden
// record at timeframe, in record order without repeats.
func (l *Lookup) Visible(ctx context.Context, segmentationID string, kind segkey.Kind, timeframe int) []segkey.Key {
	var keys []segkey.Key
	for _, r := range l.Find(ctx, segmentationID, kind, timeframe) {
		if r.IsHidden {
			continue
		}
		k, ok := r.Key()
		if !ok || k.Kind != kind || k.SegmentationID != segmentationID {
			continue
		}
		keys = append(keys, k)
	}
	return segkey.Dedupe(keys)
}

// Invalidate drops memoized results.
func (l *Lookup) Invalidate() {
	if l.memo != nil {
		l.memo.Flush()
	}
}

func (l *Lookup) fetch(ctx context.Context, segmentationID string, kind segkey.Kind, timeframe int) []Record {
	key := kind.String() + ":" + segmentationID + "@" + strconv.Itoa(timeframe)
	if l.memo != nil {
		if v, ok := l.memo.Get(key); ok {
			return v.([]Record)
		}
	}

	v, err, _ := l.flight.Do(key, func() (any, error) {
		cctx := ctx
		if l.timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, l.timeout)
			defer cancel()
		}
		return l.src.Records(cctx, segmentationID, kind, timeframe)
	})
	if err != nil {
		l.log.Warn("annotation lookup failed", voxcache.Fields{
			"segmentation": segmentationID, "kind": kind.String(), "timeframe": timeframe, "err": err,
		})
		return nil
	}
	recs, _ := v.([]Record)
	if l.memo != nil {
		l.memo.SetDefault(key, recs)
	}
	return recs
}
