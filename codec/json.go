package codec

import "encoding/json"

type JSON struct{}

var _ Encoder = JSON{}

func (JSON) Encode(v any) ([]byte, error) { return json.Marshal(v) }
