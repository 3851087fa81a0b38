package depcache

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPattern     = errors.New("depcache: pattern must not be empty")
	ErrRecursiveCompute = errors.New("depcache: key is already being computed by this call chain")
	ErrTypeMismatch     = errors.New("depcache: cached value has unexpected type")
	ErrNilProducer      = errors.New("depcache: producer is nil")
)

// PanicError is delivered by GetOrComputeAsync when the producer panicked.
// The synchronous variants let the panic propagate after releasing the key.
type PanicError struct {
	Key   string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("depcache: producer for %q panicked: %v", e.Key, e.Value)
}

func typeMismatch[V any](key string, got any) error {
	var want V
	return fmt.Errorf("%w: key %q holds %T, want %T", ErrTypeMismatch, key, got, want)
}
