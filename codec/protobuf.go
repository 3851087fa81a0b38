package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

var ErrNotProto = errors.New("codec: value is not a proto.Message")

// Protobuf encodes proto.Message values. Any other value fails with ErrNotProto.
type Protobuf struct{}

var _ Encoder = Protobuf{}

func (Protobuf) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, ErrNotProto
	}
	return proto.Marshal(m)
}
