// Package swcache implements a network-first static asset cache worker.
//
// The worker follows the browser service-worker lifecycle as an explicit
// interface: Install seeds a static namespace, Activate drops old namespaces
// and notifies every controlled client, and Fetch handles one intercepted
// request. Namespaces live in a CacheStorage backed by a pluggable byte
// Provider (go-cache, BigCache, Ristretto, Redis).
//
// Fetch policy, in order:
//
//	non-GET, cross-origin, or path containing "/api/" -> pass through
//	network 2xx on a static asset or "/"              -> return, store copy in runtime namespace
//	network non-2xx                                   -> return as-is, never stored
//	network error                                     -> any cached match, else cached "/" for HTML navigations
//
// Storage layout:
//
//	<prefix>:entry:<namespace>:<hash(request)>  - response snapshots
//	<prefix>:catalog                            - namespace names and their request keys
//
// Deleting a namespace bumps its generation in the GenStore, so entries
// written before the delete are rejected on read even if a replica still
// holds them.
package swcache
