// Package segkey encodes segment identities as "kind:segmentationId:segmentId" tokens.
//
// A Key is the only cross-backend identity for a segment: a pick on a lattice volume,
// a mesh node or a geometric primitive all resolve to one comparable value.
//
// segmentationId must not contain ':'. Keys built from such ids do not decode back;
// that is a caller bug and is not guarded against.
package segkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the closed set of segmentation representations.
type Kind uint8

const (
	Lattice Kind = iota + 1
	Mesh
	Primitive
)

// Kinds lists every valid kind in a stable order.
var Kinds = [...]Kind{Lattice, Mesh, Primitive}

var ErrMalformed = errors.New("segkey: malformed key")

func (k Kind) String() string {
	switch k {
	case Lattice:
		return "lattice"
	case Mesh:
		return "mesh"
	case Primitive:
		return "primitive"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

func (k Kind) Valid() bool { return k >= Lattice && k <= Primitive }

func ParseKind(s string) (Kind, bool) {
	switch s {
	case "lattice":
		return Lattice, true
	case "mesh":
		return Mesh, true
	case "primitive":
		return Primitive, true
	}
	return 0, false
}

// Key identifies one segment. The zero Key is invalid.
type Key struct {
	Kind           Kind
	SegmentationID string
	SegmentID      int

	// set by Decode when the segment id did not parse; such keys never match
	malformed bool
}

func New(kind Kind, segmentationID string, segmentID int) Key {
	return Key{Kind: kind, SegmentationID: segmentationID, SegmentID: segmentID}
}

// Valid reports whether k has a known kind and a parsed segment id.
func (k Key) Valid() bool { return k.Kind.Valid() && !k.malformed }

// Malformed reports whether k came from a Decode that did not parse. A key built with
// New is never malformed, even with an unknown kind.
func (k Key) Malformed() bool { return k.malformed }

// Matches is structural equality restricted to valid keys.
func (k Key) Matches(o Key) bool {
	return k.Valid() && o.Valid() && k == o
}

func (k Key) String() string {
	return Encode(k.SegmentID, k.SegmentationID, k.Kind)
}

// Encode returns "kind:segmentationId:segmentId".
func Encode(segmentID int, segmentationID string, kind Kind) string {
	return kind.String() + ":" + segmentationID + ":" + strconv.Itoa(segmentID)
}

// Decode splits s on ':' and never fails. Unknown kind text or a segment id that does
// not parse yields a malformed key (Valid() == false); callers must check before using
// it to index anything.
func Decode(s string) Key {
	parts := strings.Split(s, ":")
	var k Key
	kind, ok := ParseKind(parts[0])
	k.Kind = kind
	k.malformed = !ok
	if len(parts) > 1 {
		k.SegmentationID = parts[1]
	}
	if len(parts) < 3 {
		k.malformed = true
		return k
	}
	id, err := strconv.Atoi(parts[2])
	if err != nil {
		k.malformed = true
		return k
	}
	k.SegmentID = id
	return k
}

// Parse is the strict form of Decode.
func Parse(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("%w: %q: want 3 fields, got %d", ErrMalformed, s, len(parts))
	}
	kind, ok := ParseKind(parts[0])
	if !ok {
		return Key{}, fmt.Errorf("%w: %q: unknown kind %q", ErrMalformed, s, parts[0])
	}
	id, err := strconv.Atoi(parts[2])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: segment id: %v", ErrMalformed, s, err)
	}
	return New(kind, parts[1], id), nil
}

// DecodeAll decodes every token, keeping invalid results so callers can count them.
func DecodeAll(tokens []string) []Key {
	out := make([]Key, len(tokens))
	for i, t := range tokens {
		out[i] = Decode(t)
	}
	return out
}

// Contains reports whether keys holds a key matching k.
func Contains(keys []Key, k Key) bool {
	for _, x := range keys {
		if x.Matches(k) {
			return true
		}
	}
	return false
}

// Dedupe drops invalid keys and repeats, keeping first-seen order.
func Dedupe(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if !k.Valid() {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
