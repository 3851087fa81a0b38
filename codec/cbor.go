package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR encodes values using fxamacker/cbor.
// The zero value is NOT ready to use. Construct with NewCBOR or MustCBOR.
//
// Use deterministic=true for canonical encoding (RFC 8949 Core Deterministic)
// when sizes must be stable across runs (map ordering).
// Otherwise PreferredUnsortedEncOptions are used.
type CBOR struct {
	enc cbor.EncMode
}

var _ Encoder = CBOR{}

func NewCBOR(deterministic bool) (CBOR, error) {
	var eo cbor.EncOptions
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	} else {
		eo = cbor.PreferredUnsortedEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em}, nil
}

// MustCBOR is like NewCBOR but panics on error.
func MustCBOR(deterministic bool) CBOR {
	c, err := NewCBOR(deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR) Encode(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}
