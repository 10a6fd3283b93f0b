package swcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The worker calls them on the request path.
type Hooks interface {
	// An entry was deleted by storage on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// GenStore snapshot or bump failed for a namespace.
	GenStoreError(namespace string, err error)

	// A namespace was deleted; entries is the number of indexed keys removed.
	NamespaceDeleted(namespace string, entries int)

	// A detached runtime write failed after the response was returned.
	RuntimePutFailed(requestKey string, err error)

	// Network failed and the request was served from a cache namespace.
	CacheFallback(requestKey, namespace string)

	// Network failed and an HTML navigation was served the cached root page.
	OfflineFallback(requestKey string)

	// Network failed and nothing in cache could answer.
	FetchMiss(requestKey string, err error)

	// Activation broadcast finished.
	Broadcast(delivered, failed int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)        {}
func (NopHooks) ProviderSetRejected(string)     {}
func (NopHooks) GenStoreError(string, error)    {}
func (NopHooks) NamespaceDeleted(string, int)   {}
func (NopHooks) RuntimePutFailed(string, error) {}
func (NopHooks) CacheFallback(string, string)   {}
func (NopHooks) OfflineFallback(string)         {}
func (NopHooks) FetchMiss(string, error)        {}
func (NopHooks) Broadcast(int, int)             {}

// MultiHooks fans every event out to hs in order. Nil entries are skipped.
func MultiHooks(hs ...Hooks) Hooks {
	out := make(multiHooks, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, h)
		}
	}
	switch len(out) {
	case 0:
		return NopHooks{}
	case 1:
		return out[0]
	}
	return out
}

type multiHooks []Hooks

func (m multiHooks) SelfHeal(k, r string) {
	for _, h := range m {
		h.SelfHeal(k, r)
	}
}
func (m multiHooks) ProviderSetRejected(k string) {
	for _, h := range m {
		h.ProviderSetRejected(k)
	}
}
func (m multiHooks) GenStoreError(ns string, err error) {
	for _, h := range m {
		h.GenStoreError(ns, err)
	}
}
func (m multiHooks) NamespaceDeleted(ns string, n int) {
	for _, h := range m {
		h.NamespaceDeleted(ns, n)
	}
}
func (m multiHooks) RuntimePutFailed(k string, err error) {
	for _, h := range m {
		h.RuntimePutFailed(k, err)
	}
}
func (m multiHooks) CacheFallback(k, ns string) {
	for _, h := range m {
		h.CacheFallback(k, ns)
	}
}
func (m multiHooks) OfflineFallback(k string) {
	for _, h := range m {
		h.OfflineFallback(k)
	}
}
func (m multiHooks) FetchMiss(k string, err error) {
	for _, h := range m {
		h.FetchMiss(k, err)
	}
}
func (m multiHooks) Broadcast(delivered, failed int) {
	for _, h := range m {
		h.Broadcast(delivered, failed)
	}
}
