package server

import (
	"net/http"
	"net/url"

	"github.com/unkn0wn-root/swcache"
)

// UpstreamFetcher sends worker network requests to the upstream instead of
// the public origin the request keys are built from.
type UpstreamFetcher struct {
	upstream *url.URL
	client   *http.Client
}

var _ swcache.Fetcher = (*UpstreamFetcher)(nil)

func NewUpstreamFetcher(upstream *url.URL, client *http.Client) *UpstreamFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &UpstreamFetcher{upstream: upstream, client: client}
}

func (f *UpstreamFetcher) Do(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	u := *req.URL
	u.Scheme = f.upstream.Scheme
	u.Host = f.upstream.Host
	if f.upstream.Path != "" && f.upstream.Path != "/" {
		u.Path = singleJoin(f.upstream.Path, u.Path)
		u.RawPath = ""
	}
	out.URL = &u
	out.Host = ""
	out.RequestURI = ""
	return f.client.Do(out)
}

func singleJoin(a, b string) string {
	switch {
	case len(a) > 0 && a[len(a)-1] == '/' && len(b) > 0 && b[0] == '/':
		return a + b[1:]
	case (len(a) == 0 || a[len(a)-1] != '/') && (len(b) == 0 || b[0] != '/'):
		return a + "/" + b
	}
	return a + b
}
