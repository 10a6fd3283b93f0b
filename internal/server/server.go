// Package server fronts a storefront with the asset cache worker: every
// request goes through Worker.Fetch, and whatever the worker passes through
// is reverse-proxied to the upstream.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gocache "github.com/patrickmn/go-cache"

	"github.com/unkn0wn-root/swcache"
)

// Prefix of the control endpoints. Nothing under it reaches the worker.
const Prefix = "/__sw"

// SourceHeader names the response header that reports swcache.Source.
const SourceHeader = "X-SW-Source"

type Options struct {
	Worker   swcache.Worker
	Upstream *url.URL

	// Auth gates the admin endpoints. Nil disables login and admin routes.
	Auth       Authenticator
	SessionTTL time.Duration // 12h

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	// QueueLen bounds undelivered messages per events client (8).
	QueueLen  int
	PingEvery time.Duration // 25s

	Logger swcache.Logger
}

type Server struct {
	worker    swcache.Worker
	proxy     *httputil.ReverseProxy
	auth      Authenticator
	sessions  *gocache.Cache
	log       swcache.Logger
	queueLen  int
	pingEvery time.Duration
	router    chi.Router

	// closed by Shutdown; ends open event streams
	done     chan struct{}
	doneOnce sync.Once
}

var _ http.Handler = (*Server)(nil)

func New(opts Options) (*Server, error) {
	if opts.Worker == nil {
		return nil, errors.New("server: worker is required")
	}
	if opts.Upstream == nil || opts.Upstream.Host == "" {
		return nil, errors.New("server: absolute upstream URL is required")
	}

	s := &Server{
		worker:    opts.Worker,
		auth:      opts.Auth,
		log:       opts.Logger,
		queueLen:  opts.QueueLen,
		pingEvery: opts.PingEvery,
		done:      make(chan struct{}),
	}
	if s.log == nil {
		s.log = swcache.NopLogger{}
	}
	if s.queueLen <= 0 {
		s.queueLen = 8
	}
	if s.pingEvery <= 0 {
		s.pingEvery = 25 * time.Second
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	s.sessions = gocache.New(ttl, ttl)

	upstream := opts.Upstream
	s.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.log.Warn("proxy failed", swcache.Fields{"method": r.Method, "path": r.URL.Path, "err": err})
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	s.router = s.routes(opts.Metrics)
	return s, nil
}

func (s *Server) routes(metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route(Prefix, func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		if s.auth != nil {
			r.Post("/login", s.handleLogin)
			r.Group(func(ar chi.Router) {
				ar.Use(s.requireAdmin)
				ar.Post("/install", s.handleInstall)
				ar.Post("/activate", s.handleActivate)
				ar.Get("/caches", s.handleCaches)
			})
		}
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	r.Handle("/*", http.HandlerFunc(s.handleFetch))
	return r
}

// Shutdown ends every open event stream. http.Server.Shutdown does not
// cancel request contexts, so register it with RegisterOnShutdown.
func (s *Server) Shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	resp, src, err := s.worker.Fetch(r.Context(), r)
	switch {
	case err != nil:
		if !errors.Is(err, swcache.ErrNoResponse) {
			s.log.Error("fetch failed", swcache.Fields{"path": r.URL.Path, "err": err})
		}
		w.Header().Set(SourceHeader, src.String())
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	case src == swcache.SourcePassThrough:
		s.proxy.ServeHTTP(w, r)
	default:
		w.Header().Set(SourceHeader, src.String())
		if err := resp.Serve(w); err != nil {
			s.log.Debug("write response", swcache.Fields{"path": r.URL.Path, "err": err})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
