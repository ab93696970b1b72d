package visibility

import (
	"slices"

	"github.com/RoaringBitmap/roaring/roaring64"
)

// idSet is a set of segment ids. Ids are stored as their uint64 two's-complement
// image so negative ids survive the round trip.
type idSet struct{ bm *roaring64.Bitmap }

func newIDSet(ids ...int) idSet {
	s := idSet{bm: roaring64.New()}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

func (s idSet) add(id int)         { s.bm.Add(uint64(id)) }
func (s idSet) remove(id int)      { s.bm.Remove(uint64(id)) }
func (s idSet) has(id int) bool    { return s.bm.Contains(uint64(id)) }
func (s idSet) len() int           { return int(s.bm.GetCardinality()) }
func (s idSet) clone() idSet       { return idSet{bm: s.bm.Clone()} }
func (s idSet) equal(o idSet) bool { return slices.Equal(s.bm.ToArray(), o.bm.ToArray()) }

// ints returns the ids in ascending numeric order.
func (s idSet) ints() []int {
	raw := s.bm.ToArray()
	out := make([]int, len(raw))
	for i, u := range raw {
		out[i] = int(int64(u))
	}
	slices.Sort(out)
	return out
}
