package swcache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// Response is a stored snapshot of an HTTP response.
type Response struct {
	Status int         `json:"status" msgpack:"status" cbor:"1,keyasint"`
	Header http.Header `json:"header,omitempty" msgpack:"header,omitempty" cbor:"2,keyasint,omitempty"`
	Body   []byte      `json:"body,omitempty" msgpack:"body,omitempty" cbor:"3,keyasint,omitempty"`
	URL    string      `json:"url,omitempty" msgpack:"url,omitempty" cbor:"4,keyasint,omitempty"`

	// Stream carries the body of a response that is not buffered; Body is
	// empty then. It is never stored and Serve closes it.
	Stream io.ReadCloser `json:"-" msgpack:"-" cbor:"-"`
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status <= 299 }

// Close releases Stream, if any. Buffered responses need no Close.
func (r *Response) Close() error {
	if r == nil || r.Stream == nil {
		return nil
	}
	return r.Stream.Close()
}

// Clone returns a deep copy of a buffered response; Stream is not copied.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   append([]byte(nil), r.Body...),
		URL:    r.URL,
	}
}

// Serve writes the response to w. For a buffered response Content-Length is
// recomputed from Body; a Stream is copied as it arrives, flushing each chunk.
func (r *Response) Serve(w http.ResponseWriter) error {
	h := w.Header()
	for k, vv := range r.Header {
		h[k] = append([]string(nil), vv...)
	}
	if r.Stream != nil {
		return r.serveStream(w)
	}
	h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	w.WriteHeader(r.Status)
	if _, err := w.Write(r.Body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

func (r *Response) serveStream(w http.ResponseWriter) error {
	defer r.Stream.Close()
	w.WriteHeader(r.Status)
	rc := http.NewResponseController(w)
	buf := make([]byte, 32<<10)
	for {
		n, err := r.Stream.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write body: %w", werr)
			}
			_ = rc.Flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
	}
}

// hop-by-hop headers, RFC 9110 section 7.6.1
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// endToEnd copies h without hop-by-hop headers, including those named by Connection.
func endToEnd(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return nil
	}
	for _, v := range out.Values("Connection") {
		for _, f := range strings.Split(v, ",") {
			if f = textproto.TrimString(f); f != "" {
				out.Del(f)
			}
		}
	}
	for _, k := range hopHeaders {
		out.Del(k)
	}
	return out
}

// storable returns the copy of r that may be served to other visitors:
// per-visitor cookies are dropped. r must be buffered.
func (r *Response) storable() *Response {
	s := r.Clone()
	if s == nil {
		return nil
	}
	s.Header.Del("Set-Cookie")
	s.Header.Del("Set-Cookie2")
	return s
}

// readResponse consumes res into a snapshot and closes its body.
func readResponse(res *http.Response, url string) (*Response, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	h := endToEnd(res.Header)
	// recomputed by Serve
	h.Del("Content-Length")
	return &Response{Status: res.StatusCode, Header: h, Body: body, URL: url}, nil
}

// bufferResponse reads up to limit bytes of res. When the body fits it returns
// a buffered snapshot and complete=true; otherwise the bytes read so far and
// the rest of the body are returned as a Stream.
func bufferResponse(res *http.Response, url string, limit int64) (resp *Response, complete bool, err error) {
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		res.Body.Close()
		return nil, false, err
	}
	if int64(len(body)) <= limit {
		res.Body.Close()
		h := endToEnd(res.Header)
		h.Del("Content-Length")
		return &Response{Status: res.StatusCode, Header: h, Body: body, URL: url}, true, nil
	}
	stream := struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), res.Body), res.Body}
	return &Response{Status: res.StatusCode, Header: endToEnd(res.Header), Stream: stream, URL: url}, false, nil
}

// streamResponse hands res through without reading its body.
func streamResponse(res *http.Response, url string) *Response {
	return &Response{Status: res.StatusCode, Header: endToEnd(res.Header), Stream: res.Body, URL: url}
}

// RequestKey is the identity a request is stored under: method and URL
// without fragment.
func RequestKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	return req.Method + " " + u.String()
}
