package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned when a payload exceeds Limit.Max.
var ErrTooLarge = errors.New("codec: payload too large")

// Limit bounds the encoded size of values in both directions: Encode refuses
// to produce, and Decode refuses to parse, more than Max bytes. Max <= 0
// disables the check.
type Limit[V any] struct {
	Inner Codec[V]
	Max   int
}

func (c Limit[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.Max > 0 && len(b) > c.Max {
		return nil, fmt.Errorf("%w: encoded %d > %d", ErrTooLarge, len(b), c.Max)
	}
	return b, nil
}

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.Max > 0 && len(b) > c.Max {
		var zero V
		return zero, fmt.Errorf("%w: stored %d > %d", ErrTooLarge, len(b), c.Max)
	}
	return c.Inner.Decode(b)
}
