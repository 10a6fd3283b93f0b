package swcache

import (
	"context"
	"net/http"
)

// Worker is the asset cache worker. One method per lifecycle hook.
type Worker interface {
	// Install opens the static namespace and seeds it, all-or-nothing.
	Install(ctx context.Context) error
	// Activate deletes cache namespaces, claims clients and broadcasts MessageUpdated.
	Activate(ctx context.Context) error
	// Fetch handles one intercepted request. It never changes worker state.
	// A nil response with SourcePassThrough means the host must forward the
	// request itself. Network responses that are not cached come back with a
	// Stream the caller must Serve or Close.
	Fetch(ctx context.Context, req *http.Request) (*Response, Source, error)

	// Start runs Install and, unless skip-waiting is disabled, Activate.
	Start(ctx context.Context) error
	State() State
	Clients() *Clients
	Storage() CacheStorage
	// Names returns the static and runtime namespace names of this version.
	Names() (static, runtime string)

	// Close waits for detached runtime writes, then closes storage.
	Close(ctx context.Context) error
}

// Fetcher performs network requests. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configure a Worker. Only Origin is required.
type Options struct {
	// Required
	Origin string // scheme://host[:port] the worker controls, e.g. "https://shop.example"

	Fetcher Fetcher      // nil => &http.Client{} (no timeout, like the platform fetch)
	Storage CacheStorage // nil => in-process storage (go-cache provider, msgpack codec)

	NamePrefix       string // "dovini"
	Version          string // "v1"; bumping it invalidates every namespace on activate
	StaticCacheName  string // overrides <prefix>-static-<version>
	RuntimeCacheName string // overrides <prefix>-cache-<version>

	SeedPaths      []string // nil => ["/", "/index.html"]
	StaticSuffixes []string // nil => .js .css .html .ico .png .jpg .jpeg .gif .svg
	APIMarker      string   // "/api/"
	// MaxBufferBytes caps how much of a cacheable response is buffered (8 MiB).
	// Larger bodies are streamed to the caller and not cached.
	MaxBufferBytes int64

	DisableSkipWaiting bool   // default false => Start activates right after install
	PreserveCurrent    bool   // default false => activate deletes every namespace
	UpdateMessage      string // text of the MessageUpdated broadcast

	Clients *Clients // nil => a fresh registry
	Logger  Logger   // nil => NopLogger
	Hooks   Hooks    // nil => NopHooks
}

func New(opts Options) (Worker, error) {
	return newWorker(opts)
}

// State is a worker lifecycle state.
type State int32

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled // waiting
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Source tells where a Fetch result came from.
type Source int

const (
	SourceNone Source = iota
	SourcePassThrough
	SourceNetwork
	SourceCache
	SourceOfflineFallback
)

func (s Source) String() string {
	switch s {
	case SourcePassThrough:
		return "passthrough"
	case SourceNetwork:
		return "network"
	case SourceCache:
		return "cache"
	case SourceOfflineFallback:
		return "offline-fallback"
	default:
		return "none"
	}
}
