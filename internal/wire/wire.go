package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version byte = 1

	flagText byte = 1
)

var (
	ErrCorrupt      = errors.New("voxcache: corrupt entry")
	ErrResourceSize = errors.New("voxcache: resource id length must be 1..65535")
	magic4          = [...]byte{'V', 'X', 'C', 'E'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Part is one payload inside a frame. Channel, lattice and primitive entries carry a
// single part; mesh entries carry one part per segment.
type Part struct {
	ID      int64
	Text    bool
	Payload []byte
}

// Frame is the spill-tier representation of a cache entry.
type Frame struct {
	Kind      byte
	Timeframe int32
	Resource  string
	Parts     []Part
}

// Encode layout:
//
//	magic(4) | ver(1) | kind(1) | tf(i32 be) | rlen(u16 be) | resource(rlen) | n(u32 be)
//	id(i64 be) | flags(1) | vlen(u32 be) | payload(vlen) * n
func Encode(f Frame) ([]byte, error) {
	if l := len(f.Resource); l == 0 || l > 0xFFFF {
		return nil, ErrResourceSize
	}
	total := 4 + 1 + 1 + 4 + 2 + len(f.Resource) + 4
	for _, p := range f.Parts {
		total += 8 + 1 + 4 + len(p.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(f.Kind)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint32(u4[:], uint32(f.Timeframe))
	buf.Write(u4[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(f.Resource)))
	buf.Write(u2[:])
	buf.WriteString(f.Resource)

	binary.BigEndian.PutUint32(u4[:], uint32(len(f.Parts)))
	buf.Write(u4[:])

	for _, p := range f.Parts {
		binary.BigEndian.PutUint64(u8[:], uint64(p.ID))
		buf.Write(u8[:])

		var flags byte
		if p.Text {
			flags |= flagText
		}
		buf.WriteByte(flags)

		binary.BigEndian.PutUint32(u4[:], uint32(len(p.Payload)))
		buf.Write(u4[:])
		buf.Write(p.Payload)
	}
	return buf.Bytes(), nil
}

// Decode parses a frame. Payload slices alias b. Trailing bytes are rejected.
func Decode(b []byte) (Frame, error) {
	const hdr = 4 + 1 + 1 + 4 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Frame{}, ErrCorrupt
	}
	f := Frame{Kind: b[5]}
	off := 6

	f.Timeframe = int32(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4

	rlen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if rlen == 0 || rlen > len(b)-off {
		return Frame{}, ErrCorrupt
	}
	f.Resource = string(b[off : off+rlen])
	off += rlen

	// n
	if off+4 > len(b) {
		return Frame{}, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// every part needs at least 13 header bytes
	if n < 0 || n > (len(b)-off)/13 {
		return Frame{}, ErrCorrupt
	}

	f.Parts = make([]Part, 0, n)
	for i := 0; i < n; i++ {
		if off+8+1+4 > len(b) {
			return Frame{}, ErrCorrupt
		}
		id := int64(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
		flags := b[off]
		off++
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off { // overflow-safe bound check
			return Frame{}, ErrCorrupt
		}
		f.Parts = append(f.Parts, Part{
			ID:      id,
			Text:    flags&flagText != 0,
			Payload: b[off : off+vlen],
		})
		off += vlen
	}
	if off != len(b) {
		return Frame{}, ErrCorrupt
	}
	return f, nil
}
