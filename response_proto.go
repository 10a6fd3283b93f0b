package swcache

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// ProtoCodec stores snapshots in protobuf wire format, readable by any
// protobuf runtime with this schema:
//
//	message Response {
//	  int32 status = 1;
//	  repeated Header header = 2;
//	  bytes body = 3;
//	  string url = 4;
//	}
//	message Header {
//	  string name = 1;
//	  repeated string values = 2;
//	}
//
// Unknown fields are skipped on decode.
type ProtoCodec struct{}

const (
	protoStatus protowire.Number = 1
	protoHeader protowire.Number = 2
	protoBody   protowire.Number = 3
	protoURL    protowire.Number = 4

	protoHeaderName   protowire.Number = 1
	protoHeaderValues protowire.Number = 2
)

var errProtoType = errors.New("unexpected wire type")

func (ProtoCodec) Encode(r Response) ([]byte, error) {
	b := make([]byte, 0, len(r.Body)+64)
	b = protowire.AppendTag(b, protoStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(r.Status)))

	names := make([]string, 0, len(r.Header))
	for k := range r.Header {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		var h []byte
		h = protowire.AppendTag(h, protoHeaderName, protowire.BytesType)
		h = protowire.AppendString(h, k)
		for _, v := range r.Header[k] {
			h = protowire.AppendTag(h, protoHeaderValues, protowire.BytesType)
			h = protowire.AppendString(h, v)
		}
		b = protowire.AppendTag(b, protoHeader, protowire.BytesType)
		b = protowire.AppendBytes(b, h)
	}

	if len(r.Body) > 0 {
		b = protowire.AppendTag(b, protoBody, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Body)
	}
	if r.URL != "" {
		b = protowire.AppendTag(b, protoURL, protowire.BytesType)
		b = protowire.AppendString(b, r.URL)
	}
	return b, nil
}

func (ProtoCodec) Decode(b []byte) (Response, error) {
	var r Response
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Response{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == protoStatus && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Response{}, protowire.ParseError(n)
			}
			r.Status = int(int32(v))
			b = b[n:]
		case num == protoHeader && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Response{}, protowire.ParseError(n)
			}
			name, values, err := decodeProtoHeader(v)
			if err != nil {
				return Response{}, err
			}
			if r.Header == nil {
				r.Header = make(http.Header)
			}
			r.Header[name] = append(r.Header[name], values...)
			b = b[n:]
		case num == protoBody && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Response{}, protowire.ParseError(n)
			}
			r.Body = append([]byte(nil), v...)
			b = b[n:]
		case num == protoURL && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Response{}, protowire.ParseError(n)
			}
			r.URL = v
			b = b[n:]
		case num == protoStatus || num == protoHeader || num == protoBody || num == protoURL:
			return Response{}, fmt.Errorf("field %d: %w %d", num, errProtoType, typ)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Response{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

func decodeProtoHeader(b []byte) (name string, values []string, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType || (num != protoHeaderName && num != protoHeaderValues) {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", nil, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		s, n := protowire.ConsumeString(b)
		if n < 0 {
			return "", nil, protowire.ParseError(n)
		}
		if num == protoHeaderName {
			name = s
		} else {
			values = append(values, s)
		}
		b = b[n:]
	}
	if name == "" {
		return "", nil, errors.New("header without name")
	}
	return name, values, nil
}
