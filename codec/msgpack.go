package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack encodes values using vmihailenco/msgpack/v5.
// The zero value is ready to use.
//
// Msgpack is compact and close to the in-memory footprint of most structs,
// which makes it a reasonable default for SizeCost.
type Msgpack struct{}

var _ Encoder = Msgpack{}

func (Msgpack) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}
