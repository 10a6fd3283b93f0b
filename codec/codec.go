package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Names accepted by New.
const (
	NameMsgpack = "msgpack"
	NameJSON    = "json"
	NameCBOR    = "cbor"
)

// New returns the codec registered under name. An empty name selects msgpack.
func New[V any](name string) (Codec[V], error) {
	switch name {
	case "", NameMsgpack:
		return Msgpack[V]{}, nil
	case NameJSON:
		return JSON[V]{}, nil
	case NameCBOR:
		c, err := NewCBOR[V](true)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
