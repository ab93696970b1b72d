package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge marks a payload refused by Limit.
var ErrTooLarge = errors.New("codec: payload too large")

// Limit refuses to decode payloads above MaxDecode bytes; a shared tier may hold
// frames written by other processes. MaxDecode <= 0 disables the check.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

func (l Limit[V]) Encode(v V) ([]byte, error) { return l.Inner.Encode(v) }

func (l Limit[V]) Decode(b []byte) (V, error) {
	if l.MaxDecode > 0 && len(b) > l.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(b), l.MaxDecode)
	}
	return l.Inner.Decode(b)
}
