package swcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"
)

type worker struct {
	origin  *url.URL
	fetcher Fetcher
	storage CacheStorage
	clients *Clients
	policy  policy
	log     Logger
	hooks   Hooks

	staticName  string
	runtimeName string
	seedPaths   []string
	skipWaiting bool
	preserve    bool
	updateMsg   string
	maxBuffer   int64
	rootKey     string

	// lifecycle; hooks are serialized by lifecycleMu
	lifecycleMu sync.Mutex
	stateMu     sync.RWMutex
	state       State

	// detached runtime writes
	closeMu sync.RWMutex
	closed  bool
	pending sync.WaitGroup
}

func newWorker(opts Options) (*worker, error) {
	if opts.Origin == "" {
		return nil, fmt.Errorf("swcache: origin is required")
	}
	origin, err := url.Parse(opts.Origin)
	if err != nil {
		return nil, fmt.Errorf("swcache: parse origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("swcache: origin %q must be absolute", opts.Origin)
	}

	w := &worker{
		origin:      &url.URL{Scheme: origin.Scheme, Host: origin.Host},
		fetcher:     opts.Fetcher,
		storage:     opts.Storage,
		clients:     opts.Clients,
		staticName:  coalesce(opts.StaticCacheName, StaticCacheName(opts.NamePrefix, opts.Version)),
		runtimeName: coalesce(opts.RuntimeCacheName, RuntimeCacheName(opts.NamePrefix, opts.Version)),
		seedPaths:   opts.SeedPaths,
		skipWaiting: !opts.DisableSkipWaiting,
		preserve:    opts.PreserveCurrent,
		updateMsg:   coalesce(opts.UpdateMessage, defaultUpdateMessage),
		maxBuffer:   opts.MaxBufferBytes,
	}
	if w.maxBuffer <= 0 {
		w.maxBuffer = defaultMaxBufferBytes
	}
	root := &http.Request{Method: http.MethodGet, URL: w.origin.ResolveReference(&url.URL{Path: "/"})}
	w.rootKey = RequestKey(root)

	// defaults
	w.log = coalesce[Logger](opts.Logger, NopLogger{})
	w.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if w.fetcher == nil {
		w.fetcher = &http.Client{}
	}
	if w.storage == nil {
		w.storage = NewMemoryStorage(w.log, w.hooks)
	}
	if w.clients == nil {
		w.clients = NewClients()
	}
	if w.seedPaths == nil {
		w.seedPaths = defaultSeedPaths
	}
	suffixes := opts.StaticSuffixes
	if suffixes == nil {
		suffixes = defaultStaticSuffixes
	}
	w.policy = newPolicy(w.origin, coalesce(opts.APIMarker, defaultAPIMarker), suffixes)
	return w, nil
}

func (w *worker) State() State {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

func (w *worker) setState(s State) {
	w.stateMu.Lock()
	w.state = s
	w.stateMu.Unlock()
}

func (w *worker) Clients() *Clients               { return w.clients }
func (w *worker) Storage() CacheStorage           { return w.storage }
func (w *worker) Names() (static, runtime string) { return w.staticName, w.runtimeName }

func (w *worker) Start(ctx context.Context) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	if !w.skipWaiting {
		w.log.Info("installed; waiting for activation", Fields{"static": w.staticName})
		return nil
	}
	return w.Activate(ctx)
}

func (w *worker) Install(ctx context.Context) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	if w.isClosed() {
		return ErrClosed
	}
	switch st := w.State(); st {
	case StateParsed, StateInstalled:
	default:
		return &StateError{Op: "install", State: st}
	}

	w.setState(StateInstalling)
	if err := w.install(ctx); err != nil {
		w.setState(StateRedundant)
		w.log.Error("install failed", Fields{"static": w.staticName, "err": err})
		return err
	}
	w.setState(StateInstalled)
	w.log.Info("installed", Fields{"static": w.staticName, "seeds": len(w.seedPaths), "skipWaiting": w.skipWaiting})
	return nil
}

func (w *worker) install(ctx context.Context) error {
	if err := w.storage.Open(ctx, w.staticName); err != nil {
		return fmt.Errorf("open %s: %w", w.staticName, err)
	}

	// fetch every seed before writing any of them
	reqs := make([]*http.Request, len(w.seedPaths))
	resps := make([]*Response, len(w.seedPaths))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range w.seedPaths {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, w.origin.ResolveReference(&url.URL{Path: p}).String(), nil)
			if err != nil {
				return &InstallError{Path: p, Err: err}
			}
			resp, err := w.network(req)
			if err != nil {
				return &InstallError{Path: p, Err: err}
			}
			if !resp.OK() {
				return &InstallError{Path: p, Status: resp.Status}
			}
			reqs[i], resps[i] = req, resp.storable()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, p := range w.seedPaths {
		if err := w.storage.Put(ctx, w.staticName, RequestKey(reqs[i]), resps[i]); err != nil {
			w.rollback(ctx, reqs[:i])
			return &InstallError{Path: p, Err: err}
		}
	}
	return nil
}

// rollback removes seeds already written by a failed install.
func (w *worker) rollback(ctx context.Context, reqs []*http.Request) {
	for _, r := range reqs {
		if _, err := w.storage.Delete(ctx, w.staticName, RequestKey(r)); err != nil {
			w.log.Warn("install rollback failed", Fields{"key": RequestKey(r), "err": err})
		}
	}
}

func (w *worker) Activate(ctx context.Context) error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	if w.isClosed() {
		return ErrClosed
	}
	if st := w.State(); st != StateInstalled {
		return &StateError{Op: "activate", State: st}
	}

	w.setState(StateActivating)
	names, err := w.storage.ListNamespaces(ctx)
	if err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("activate: list namespaces: %w", err)
	}
	var errs []error
	deleted := 0
	for _, n := range names {
		if w.preserve && (n == w.staticName || n == w.runtimeName) {
			continue
		}
		if _, err := w.storage.DeleteNamespace(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", n, err))
			continue
		}
		deleted++
	}
	if err := errors.Join(errs...); err != nil {
		w.setState(StateInstalled)
		return fmt.Errorf("activate: %w", err)
	}
	w.setState(StateActivated)

	claimed := w.clients.Claim()
	delivered, failed := w.clients.Broadcast(ctx, Message{Type: MessageUpdated, Message: w.updateMsg})
	for id, err := range failed {
		w.log.Warn("update broadcast not delivered", Fields{"client": id, "err": err})
	}
	w.hooks.Broadcast(delivered, len(failed))
	w.log.Info("activated", Fields{
		"deleted":   deleted,
		"claimed":   claimed,
		"delivered": delivered,
		"failed":    len(failed),
	})
	return nil
}

func (w *worker) Fetch(ctx context.Context, req *http.Request) (*Response, Source, error) {
	if w.State() != StateActivated {
		return nil, SourcePassThrough, nil
	}
	out := w.outbound(ctx, req)
	if !w.policy.intercepts(out) {
		return nil, SourcePassThrough, nil
	}

	key := RequestKey(out)
	res, err := w.fetcher.Do(out)
	if err != nil {
		return w.fallback(ctx, out, key, err)
	}
	ok := res.StatusCode >= 200 && res.StatusCode <= 299
	if !ok || !w.policy.cacheable(out.URL.Path) {
		return streamResponse(res, out.URL.String()), SourceNetwork, nil
	}

	resp, complete, err := bufferResponse(res, out.URL.String(), w.maxBuffer)
	if err != nil {
		return w.fallback(ctx, out, key, err)
	}
	if complete {
		w.putDetached(ctx, key, resp.storable())
	} else {
		w.log.Debug("response too large to cache", Fields{"key": key, "max": w.maxBuffer})
	}
	return resp, SourceNetwork, nil
}

// outbound clones req for the network, resolving a relative URL against the
// origin. Accept-Encoding is dropped so a cached body does not depend on
// which encodings the first visitor accepted.
func (w *worker) outbound(ctx context.Context, req *http.Request) *http.Request {
	out := req.Clone(ctx)
	if !out.URL.IsAbs() {
		out.URL = w.origin.ResolveReference(out.URL)
		out.Host = ""
	}
	out.RequestURI = ""
	out.Header.Del("Accept-Encoding")
	return out
}

func (w *worker) network(req *http.Request) (*Response, error) {
	res, err := w.fetcher.Do(req)
	if err != nil {
		return nil, err
	}
	return readResponse(res, req.URL.String())
}

func (w *worker) fallback(ctx context.Context, req *http.Request, key string, netErr error) (*Response, Source, error) {
	w.log.Debug("network failed; trying cache", Fields{"key": key, "err": netErr})

	resp, ns, ok, err := w.storage.Match(ctx, key)
	if err != nil {
		w.log.Warn("cache match failed", Fields{"key": key, "err": err})
	}
	if ok {
		w.hooks.CacheFallback(key, ns)
		return resp, SourceCache, nil
	}

	if acceptsHTML(req.Header) {
		resp, _, ok, err := w.storage.Match(ctx, w.rootKey)
		if err != nil {
			w.log.Warn("offline root match failed", Fields{"key": w.rootKey, "err": err})
		}
		if ok {
			w.hooks.OfflineFallback(key)
			return resp, SourceOfflineFallback, nil
		}
	}

	w.hooks.FetchMiss(key, netErr)
	return nil, SourceNone, &FetchError{RequestKey: key, NetErr: netErr}
}

// putDetached stores snap in the runtime namespace without blocking the caller.
// Errors are logged and dropped.
func (w *worker) putDetached(ctx context.Context, key string, snap *Response) {
	w.closeMu.RLock()
	if w.closed {
		w.closeMu.RUnlock()
		return
	}
	w.pending.Add(1)
	w.closeMu.RUnlock()

	pctx := context.WithoutCancel(ctx)
	go func() {
		defer w.pending.Done()
		if err := w.storage.Put(pctx, w.runtimeName, key, snap); err != nil {
			w.hooks.RuntimePutFailed(key, err)
			w.log.Warn("runtime cache write failed", Fields{"key": key, "err": err})
		}
	}()
}

func (w *worker) isClosed() bool {
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	return w.closed
}

func (w *worker) Close(ctx context.Context) error {
	w.closeMu.Lock()
	if w.closed {
		w.closeMu.Unlock()
		return nil
	}
	w.closed = true
	w.closeMu.Unlock()

	w.pending.Wait()
	w.setState(StateRedundant)
	return w.storage.Close(ctx)
}
