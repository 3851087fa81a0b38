// Package codec provides encoders used to estimate the memory cost of cached
// values. The cache itself never serializes values: entries are kept as live Go
// values. A bounded provider (see provider/ristretto) can however weigh entries
// by their encoded size instead of counting them.
package codec

// Encoder serializes an arbitrary value to bytes.
type Encoder interface {
	Encode(v any) ([]byte, error)
}

// SizeCost returns a cost function reporting the encoded length of a value.
// Values that fail to encode cost 1 so they are still admitted.
func SizeCost(enc Encoder) func(v any) int64 {
	return func(v any) int64 {
		b, err := enc.Encode(v)
		if err != nil || len(b) == 0 {
			return 1
		}
		return int64(len(b))
	}
}
