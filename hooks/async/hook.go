// usage:
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{
//	    SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	    FallbackEvery: 1,  // log every cache fallback
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	w, _ := swcache.New(swcache.Options{
//	    Origin: "https://shop.example",
//	    Hooks:  hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/swcache"
)

// Hooks forwards events to inner on a bounded queue. Events are dropped
// when the queue is full or after Close.
type Hooks struct {
	inner   swcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ swcache.Hooks = (*Hooks)(nil)

func New(inner swcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers.
func (h *Hooks) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.q)
	h.mu.Unlock()
	h.wg.Wait()
}

// Dropped returns how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, r string)               { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderSetRejected(k string)       { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) GenStoreError(ns string, err error) { h.try(func() { h.inner.GenStoreError(ns, err) }) }
func (h *Hooks) NamespaceDeleted(ns string, n int) {
	h.try(func() { h.inner.NamespaceDeleted(ns, n) })
}
func (h *Hooks) RuntimePutFailed(k string, err error) {
	h.try(func() { h.inner.RuntimePutFailed(k, err) })
}
func (h *Hooks) CacheFallback(k, ns string)    { h.try(func() { h.inner.CacheFallback(k, ns) }) }
func (h *Hooks) OfflineFallback(k string)      { h.try(func() { h.inner.OfflineFallback(k) }) }
func (h *Hooks) FetchMiss(k string, err error) { h.try(func() { h.inner.FetchMiss(k, err) }) }
func (h *Hooks) Broadcast(delivered, failed int) {
	h.try(func() { h.inner.Broadcast(delivered, failed) })
}
