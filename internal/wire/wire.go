package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version     byte = 1
	kindEntry   byte = 1
	kindCatalog byte = 2
)

var (
	ErrCorrupt   = errors.New("swcache: corrupt record")
	ErrKeyLength = errors.New("swcache: catalog string length out of range")
	magic4       = [...]byte{'S', 'W', 'C', 'R'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | kind(1=entry) | gen(u64 be) | vlen(u32 be) | payload(vlen)
//
// gen is the namespace generation observed when the entry was written.
func EncodeEntry(gen uint64, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 8 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

func DecodeEntry(b []byte) (gen uint64, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 8 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return 0, nil, ErrCorrupt
	}

	off := 6
	gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// exact length: trailing bytes mean a foreign or truncated write
	if vlen != len(b)-off {
		return 0, nil, ErrCorrupt
	}

	return gen, b[off : off+vlen], nil
}

// Catalog:
//
//	magic(4) | ver(1) | kind(2=catalog) | n(u32 be)
//	nameLen(u16 be) | name | keyCount(u32 be) | (keyLen(u16 be) | key) * keyCount   * n
//
// Namespaces keep their order; it is the order caches are searched on fallback.
type Namespace struct {
	Name string
	Keys []string
}

func EncodeCatalog(nss []Namespace) ([]byte, error) {
	total := 4 + 1 + 1 + 4
	for _, ns := range nss {
		total += 2 + len(ns.Name) + 4
		for _, k := range ns.Keys {
			total += 2 + len(k)
		}
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindCatalog)

	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint32(u4[:], uint32(len(nss)))
	buf.Write(u4[:])

	for _, ns := range nss {
		if l := len(ns.Name); l == 0 || l > 0xFFFF {
			return nil, ErrKeyLength
		}
		binary.BigEndian.PutUint16(u2[:], uint16(len(ns.Name)))
		buf.Write(u2[:])
		buf.WriteString(ns.Name)

		binary.BigEndian.PutUint32(u4[:], uint32(len(ns.Keys)))
		buf.Write(u4[:])
		for _, k := range ns.Keys {
			if l := len(k); l == 0 || l > 0xFFFF {
				return nil, ErrKeyLength
			}
			binary.BigEndian.PutUint16(u2[:], uint16(len(k)))
			buf.Write(u2[:])
			buf.WriteString(k)
		}
	}

	return buf.Bytes(), nil
}

func DecodeCatalog(b []byte) ([]Namespace, error) {
	const hdr = 4 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != kindCatalog {
		return nil, ErrCorrupt
	}

	off := 6
	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4

	readStr := func() (string, bool) {
		if off+2 > len(b) {
			return "", false
		}
		l := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if l <= 0 || l > len(b)-off {
			return "", false
		}
		s := string(b[off : off+l])
		off += l
		return s, true
	}

	// n is untrusted; grow as records actually decode
	var out []Namespace
	for i := 0; i < n; i++ {
		name, ok := readStr()
		if !ok {
			return nil, ErrCorrupt
		}
		if off+4 > len(b) {
			return nil, ErrCorrupt
		}
		kc := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4

		var keys []string
		for j := 0; j < kc; j++ {
			k, ok := readStr()
			if !ok {
				return nil, ErrCorrupt
			}
			keys = append(keys, k)
		}
		out = append(out, Namespace{Name: name, Keys: keys})
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return out, nil
}
