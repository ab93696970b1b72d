package voxcache

import (
	"strconv"

	"github.com/unkn0wn-root/voxcache/codec"
)

// DataKind is the closed set of payload kinds the cache holds.
type DataKind uint8

const (
	KindChannel DataKind = iota + 1
	KindLattice
	KindMesh
	KindPrimitive
)

func (k DataKind) String() string {
	switch k {
	case KindChannel:
		return "channel"
	case KindLattice:
		return "lattice"
	case KindMesh:
		return "mesh"
	case KindPrimitive:
		return "primitive"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

func (k DataKind) Valid() bool { return k >= KindChannel && k <= KindPrimitive }

// TimeInfo is the inclusive range of valid timeframe indices for a resource.
type TimeInfo struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (t TimeInfo) Contains(tf int) bool { return tf >= t.Start && tf <= t.End }

// Clamp returns tf limited to [Start, End].
func (t TimeInfo) Clamp(tf int) int {
	if tf < t.Start {
		return t.Start
	}
	if tf > t.End {
		return t.End
	}
	return tf
}

// Raw is an opaque payload: binary data, or UTF-8 text when Text is set.
// Its size is len(Data) either way.
type Raw struct {
	Data []byte
	Text bool
}

func BytesRaw(b []byte) Raw  { return Raw{Data: b} }
func TextRaw(s string) Raw   { return Raw{Data: []byte(s), Text: true} }
func (r Raw) String() string { return string(r.Data) }
func (r Raw) Size() int64    { return int64(len(r.Data)) }

// Entry is one cached payload. The set of implementations is closed:
// ChannelEntry, LatticeEntry, MeshEntry, PrimitiveEntry.
//
// Entries are owned by the cache once inserted. Callers get a shared view and
// must not mutate payload slices.
type Entry interface {
	Kind() DataKind
	Timeframe() int
	ResourceID() string
	// Size is the byte estimate used for capacity derivation.
	Size() int64

	sealed()
}

// ChannelEntry is one volume channel at one timeframe.
type ChannelEntry struct {
	TimeframeIndex int
	ChannelID      string
	Payload        Raw
}

func (ChannelEntry) Kind() DataKind       { return KindChannel }
func (e ChannelEntry) Timeframe() int     { return e.TimeframeIndex }
func (e ChannelEntry) ResourceID() string { return e.ChannelID }
func (e ChannelEntry) Size() int64        { return e.Payload.Size() }
func (ChannelEntry) sealed()              {}

// LatticeEntry is a voxel-lattice segmentation at one timeframe.
type LatticeEntry struct {
	TimeframeIndex int
	SegmentationID string
	Payload        Raw
}

func (LatticeEntry) Kind() DataKind       { return KindLattice }
func (e LatticeEntry) Timeframe() int     { return e.TimeframeIndex }
func (e LatticeEntry) ResourceID() string { return e.SegmentationID }
func (e LatticeEntry) Size() int64        { return e.Payload.Size() }
func (LatticeEntry) sealed()              {}

// MeshPart is the mesh payload of one segment.
type MeshPart struct {
	SegmentID int
	Data      Raw
}

// MeshEntry is a triangle-mesh segmentation at one timeframe, one part per segment.
type MeshEntry struct {
	TimeframeIndex int
	SegmentationID string
	Parts          []MeshPart
}

func (MeshEntry) Kind() DataKind       { return KindMesh }
func (e MeshEntry) Timeframe() int     { return e.TimeframeIndex }
func (e MeshEntry) ResourceID() string { return e.SegmentationID }
func (e MeshEntry) Size() int64 {
	var n int64
	for _, p := range e.Parts {
		n += p.Data.Size()
	}
	return n
}
func (MeshEntry) sealed() {}

// Primitive is one parametric shape. Which fields are meaningful depends on Kind:
// sphere (Center, Radius), box (Translation, Scaling, Rotation),
// cylinder and pyramid (Start, End, RadiusBottom, RadiusTop),
// ellipsoid (Center, Radius, Dir1, Dir2).
type Primitive struct {
	ID           int       `json:"id" msgpack:"id" cbor:"id"`
	Kind         string    `json:"kind" msgpack:"kind" cbor:"kind"`
	Color        []float64 `json:"color,omitempty" msgpack:"color,omitempty" cbor:"color,omitempty"`
	Center       []float64 `json:"center,omitempty" msgpack:"center,omitempty" cbor:"center,omitempty"`
	Radius       float64   `json:"radius,omitempty" msgpack:"radius,omitempty" cbor:"radius,omitempty"`
	Translation  []float64 `json:"translation,omitempty" msgpack:"translation,omitempty" cbor:"translation,omitempty"`
	Scaling      []float64 `json:"scaling,omitempty" msgpack:"scaling,omitempty" cbor:"scaling,omitempty"`
	Rotation     []float64 `json:"rotation,omitempty" msgpack:"rotation,omitempty" cbor:"rotation,omitempty"`
	Start        []float64 `json:"start,omitempty" msgpack:"start,omitempty" cbor:"start,omitempty"`
	End          []float64 `json:"end,omitempty" msgpack:"end,omitempty" cbor:"end,omitempty"`
	RadiusBottom float64   `json:"radius_bottom,omitempty" msgpack:"radius_bottom,omitempty" cbor:"radius_bottom,omitempty"`
	RadiusTop    float64   `json:"radius_top,omitempty" msgpack:"radius_top,omitempty" cbor:"radius_top,omitempty"`
	Dir1         []float64 `json:"dir1,omitempty" msgpack:"dir1,omitempty" cbor:"dir1,omitempty"`
	Dir2         []float64 `json:"dir2,omitempty" msgpack:"dir2,omitempty" cbor:"dir2,omitempty"`
}

// PrimitiveEntry is a geometric-primitive segmentation at one timeframe.
type PrimitiveEntry struct {
	TimeframeIndex int
	SegmentationID string
	Primitives     []Primitive
}

func (PrimitiveEntry) Kind() DataKind       { return KindPrimitive }
func (e PrimitiveEntry) Timeframe() int     { return e.TimeframeIndex }
func (e PrimitiveEntry) ResourceID() string { return e.SegmentationID }

// Size is the length of the JSON encoding.
func (e PrimitiveEntry) Size() int64 {
	b, err := codec.JSON[[]Primitive]{}.Encode(e.Primitives)
	if err != nil {
		return 0
	}
	return int64(len(b))
}
func (PrimitiveEntry) sealed() {}
