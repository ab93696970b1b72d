package codec

import "google.golang.org/protobuf/proto"

// Proto encodes generated messages, for loaders whose lattice or channel payloads
// arrive as protobuf rather than raw bytes. It is typed only; ByName never
// returns it.
type Proto[M proto.Message] struct {
	alloc func() M
}

// NewProto takes the message constructor, e.g. func() *pb.Volume { return new(pb.Volume) }.
func NewProto[M proto.Message](alloc func() M) Proto[M] {
	return Proto[M]{alloc: alloc}
}

func (p Proto[M]) Encode(m M) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(m)
}

func (p Proto[M]) Decode(b []byte) (M, error) {
	m := p.alloc()
	if err := proto.Unmarshal(b, m); err != nil {
		var zero M
		return zero, err
	}
	return m, nil
}
