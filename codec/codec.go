// Package codec holds the payload serializers used by voxcache.
//
// The cache itself treats payloads as opaque. Codecs are needed in two places only:
// measuring structured primitive lists (their JSON length is their size) and writing
// primitive lists to the optional spill tier.
package codec

import (
	"errors"
	"fmt"
)

// Codec converts a decoded payload to and from its stored bytes.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ErrUnknown is returned by ByName for an unregistered codec name.
var ErrUnknown = errors.New("codec: unknown name")

// Names lists the codecs ByName understands.
var Names = []string{"json", "msgpack", "cbor"}

// ByName returns the structured codec registered under name. A positive
// maxDecode wraps it in a Limit.
//
// Proto is not listed: it needs a concrete generated message type and its
// constructor, so callers build it with NewProto and can wrap it in Limit
// themselves.
func ByName[V any](name string, maxDecode int) (Codec[V], error) {
	var c Codec[V]
	switch name {
	case "json", "":
		c = JSON[V]{}
	case "msgpack":
		c = Msgpack[V]{}
	case "cbor":
		cb, err := NewCBOR[V](true)
		if err != nil {
			return nil, err
		}
		c = cb
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknown, name)
	}
	if maxDecode > 0 {
		c = Limit[V]{Inner: c, MaxDecode: maxDecode}
	}
	return c, nil
}
