package swcache

import (
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
)

type policy struct {
	origin    string // normalized scheme://host[:port]
	apiMarker string
	suffixes  map[string]struct{}
}

func newPolicy(origin *url.URL, apiMarker string, suffixes []string) policy {
	p := policy{
		origin:    originOf(origin),
		apiMarker: apiMarker,
		suffixes:  make(map[string]struct{}, len(suffixes)),
	}
	for _, s := range suffixes {
		p.suffixes[s] = struct{}{}
	}
	return p
}

// intercepts reports whether Fetch handles the request at all.
func (p policy) intercepts(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if originOf(req.URL) != p.origin {
		return false
	}
	return !strings.Contains(req.URL.Path, p.apiMarker)
}

// cacheable reports whether a 2xx response for urlPath goes to the runtime namespace.
func (p policy) cacheable(urlPath string) bool {
	if urlPath == "/" {
		return true
	}
	_, ok := p.suffixes[path.Ext(urlPath)]
	return ok
}

// acceptsHTML reports an HTML navigation. A missing Accept header is not one.
func acceptsHTML(h http.Header) bool {
	for _, v := range h.Values("Accept") {
		if strings.Contains(v, "text/html") {
			return true
		}
	}
	return false
}

// originOf returns scheme://host[:port] in lower case, default ports dropped.
func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return scheme + "://" + host
}
