package codec

import (
	"bytes"
	"errors"
	"net/http"
	"testing"
)

type snapshot struct {
	Status int         `json:"status" msgpack:"status" cbor:"status"`
	Header http.Header `json:"header" msgpack:"header" cbor:"header"`
	Body   []byte      `json:"body" msgpack:"body" cbor:"body"`
}

func TestNamedCodecsPreserveSnapshots(t *testing.T) {
	in := snapshot{
		Status: 200,
		Header: http.Header{"Content-Type": {"image/png"}, "Etag": {`"abc"`}},
		Body:   []byte{0x89, 'P', 'N', 'G', 0, 1, 2},
	}
	for _, name := range []string{"", NameMsgpack, NameJSON, NameCBOR} {
		c, err := New[snapshot](name)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%q encode: %v", name, err)
		}
		out, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%q decode: %v", name, err)
		}
		if out.Status != in.Status || !bytes.Equal(out.Body, in.Body) ||
			out.Header.Get("Content-Type") != "image/png" || out.Header.Get("Etag") != `"abc"` {
			t.Fatalf("%q: got %+v want %+v", name, out, in)
		}
	}
}

func TestNewUnknownCodec(t *testing.T) {
	if _, err := New[snapshot]("gob"); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := Limit[snapshot]{Inner: JSON[snapshot]{}, Max: 32}
	if _, err := c.Encode(snapshot{Status: 200, Body: []byte("0123456789abcdef")}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Encode: want ErrTooLarge, got %v", err)
	}

	b, err := JSON[snapshot]{}.Encode(snapshot{Status: 200, Body: []byte("0123456789abcdef")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := c.Decode(b); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Decode: want ErrTooLarge for %d bytes, got %v", len(b), err)
	}

	unlimited := Limit[snapshot]{Inner: JSON[snapshot]{}}
	if _, err := unlimited.Decode(b); err != nil {
		t.Fatalf("Max=0 must not limit: %v", err)
	}
}

func TestCBORDeterministic(t *testing.T) {
	c, err := NewCBOR[map[string][]string](true)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := c.Encode(map[string][]string{"B": {"2"}, "A": {"1"}, "C": {"3"}})
	b, _ := c.Encode(map[string][]string{"C": {"3"}, "A": {"1"}, "B": {"2"}})
	if !bytes.Equal(a, b) {
		t.Fatalf("deterministic encodings differ:\n%x\n%x", a, b)
	}
}
