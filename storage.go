package swcache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	c "github.com/unkn0wn-root/swcache/codec"
	gen "github.com/unkn0wn-root/swcache/genstore"
	"github.com/unkn0wn-root/swcache/internal/util"
	"github.com/unkn0wn-root/swcache/internal/wire"
	pr "github.com/unkn0wn-root/swcache/provider"
	"github.com/unkn0wn-root/swcache/provider/gocache"
)

// CacheStorage is a set of named namespaces mapping request keys to
// response snapshots. Get and Put are atomic per key.
type CacheStorage interface {
	// Open creates the namespace if it does not exist.
	Open(ctx context.Context, namespace string) error
	Get(ctx context.Context, namespace, key string) (*Response, bool, error)
	// Put stores resp, creating the namespace if needed. Last writer wins.
	Put(ctx context.Context, namespace, key string, resp *Response) error
	Delete(ctx context.Context, namespace, key string) (bool, error)
	// Match searches every namespace in creation order and returns the first hit.
	Match(ctx context.Context, key string) (resp *Response, namespace string, ok bool, err error)
	Keys(ctx context.Context, namespace string) ([]string, error)
	// DeleteNamespace reports false when the namespace did not exist.
	DeleteNamespace(ctx context.Context, namespace string) (bool, error)
	ListNamespaces(ctx context.Context) ([]string, error)
	Close(ctx context.Context) error
}

// StorageOptions configure NewStorage. Only Provider is required.
type StorageOptions struct {
	Provider  pr.Provider
	Codec     c.Codec[Response] // nil => msgpack
	GenStore  gen.GenStore      // nil => LocalGenStore (in-process)
	KeyPrefix string            // "swcache"; isolates deployments sharing a store

	// MaxEntryBytes bounds encoded snapshots on write and read (0 = no limit).
	MaxEntryBytes int

	Logger Logger
	Hooks  Hooks
}

type storage struct {
	prefix   string
	provider pr.Provider
	codec    c.Codec[Response]
	gen      gen.GenStore
	log      Logger
	hooks    Hooks

	// catalog, loaded from the provider on first use
	mu     sync.Mutex
	loaded bool
	order  []string
	keys   map[string][]string
}

func NewStorage(opts StorageOptions) (CacheStorage, error) {
	return newStorage(opts)
}

// NewMemoryStorage returns storage on an in-process go-cache provider.
func NewMemoryStorage(log Logger, hooks Hooks) CacheStorage {
	s, _ := newStorage(StorageOptions{Provider: gocache.New(0), Logger: log, Hooks: hooks})
	return s
}

func newStorage(opts StorageOptions) (*storage, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("swcache: provider is required")
	}
	s := &storage{
		prefix:   coalesce(opts.KeyPrefix, defaultKeyPrefix),
		provider: opts.Provider,
		codec:    opts.Codec,
		gen:      opts.GenStore,
		keys:     make(map[string][]string),
	}
	if s.codec == nil {
		s.codec = c.Msgpack[Response]{}
	}
	if opts.MaxEntryBytes > 0 {
		s.codec = c.Limit[Response]{Inner: s.codec, Max: opts.MaxEntryBytes}
	}
	if s.gen == nil {
		s.gen = gen.NewLocalGenStore()
	}
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	return s, nil
}

func (s *storage) Open(ctx context.Context, namespace string) error {
	if namespace == "" {
		return errors.New("swcache: empty namespace name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return err
	}
	if _, ok := s.keys[namespace]; ok {
		return nil
	}
	s.order = append(s.order, namespace)
	s.keys[namespace] = nil
	return s.persistNamesLocked(ctx)
}

func (s *storage) Get(ctx context.Context, namespace, key string) (*Response, bool, error) {
	g, err := s.snapshotGen(ctx, namespace)
	if err != nil {
		return nil, false, err
	}
	return s.get(ctx, namespace, key, g)
}

func (s *storage) get(ctx context.Context, namespace, key string, curGen uint64) (*Response, bool, error) {
	ek := s.entryKey(namespace, key)
	raw, ok, err := s.provider.Get(ctx, ek)
	if err != nil || !ok {
		return nil, false, err
	}
	g, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		s.heal(ctx, namespace, key, ek, "corrupt")
		return nil, false, nil
	}
	if g != curGen {
		s.heal(ctx, namespace, key, ek, "gen_mismatch")
		return nil, false, nil
	}
	v, err := s.codec.Decode(payload)
	if err != nil {
		s.heal(ctx, namespace, key, ek, "value_decode")
		return nil, false, nil
	}
	return &v, true, nil
}

func (s *storage) Put(ctx context.Context, namespace, key string, resp *Response) error {
	if namespace == "" {
		return errors.New("swcache: empty namespace name")
	}
	if resp == nil {
		return errors.New("swcache: nil response")
	}
	g, err := s.snapshotGen(ctx, namespace)
	if err != nil {
		return err
	}
	payload, err := s.codec.Encode(*resp)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	ek := s.entryKey(namespace, key)
	raw := wire.EncodeEntry(g, payload)
	ok, err := s.provider.Set(ctx, ek, raw, int64(len(raw)), 0)
	if err != nil {
		return err
	}
	if !ok {
		s.hooks.ProviderSetRejected(ek)
		s.log.Debug("put rejected by provider (pressure)", Fields{"namespace": namespace, "key": key})
		return ErrStoreRejected
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return err
	}
	keys, known := s.keys[namespace]
	if known && slices.Contains(keys, key) {
		return nil
	}
	s.keys[namespace] = append(keys, key)
	if !known {
		s.order = append(s.order, namespace)
		if err := s.persistNamesLocked(ctx); err != nil {
			return err
		}
	}
	return s.persistKeysLocked(ctx, namespace)
}

func (s *storage) Delete(ctx context.Context, namespace, key string) (bool, error) {
	ek := s.entryKey(namespace, key)
	_, existed, err := s.provider.Get(ctx, ek)
	if err != nil {
		return false, err
	}
	if err := s.provider.Del(ctx, ek); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forgetLocked(namespace, key) {
		if err := s.persistKeysLocked(ctx, namespace); err != nil {
			return existed, err
		}
	}
	return existed, nil
}

func (s *storage) Match(ctx context.Context, key string) (*Response, string, bool, error) {
	names, err := s.ListNamespaces(ctx)
	if err != nil || len(names) == 0 {
		return nil, "", false, err
	}
	gks := make([]string, len(names))
	for i, n := range names {
		gks[i] = util.GenKey(s.prefix, n)
	}
	gens, err := s.gen.SnapshotMany(ctx, gks)
	if err != nil {
		s.hooks.GenStoreError("*", err)
		return nil, "", false, err
	}
	for i, n := range names {
		resp, ok, err := s.get(ctx, n, key, gens[gks[i]])
		if err != nil {
			// one unreachable namespace must not hide a hit in another
			s.log.Warn("match: namespace read failed", Fields{"namespace": n, "key": key, "err": err})
			continue
		}
		if ok {
			return resp, n, true, nil
		}
	}
	return nil, "", false, nil
}

func (s *storage) Keys(ctx context.Context, namespace string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(s.keys[namespace]), nil
}

func (s *storage) DeleteNamespace(ctx context.Context, namespace string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return false, err
	}
	keys, ok := s.keys[namespace]
	if !ok {
		return false, nil
	}

	// bump first: whatever the deletes below miss is already unreadable
	if _, err := s.gen.Bump(ctx, util.GenKey(s.prefix, namespace)); err != nil {
		s.hooks.GenStoreError(namespace, err)
		return false, fmt.Errorf("delete namespace %q: %w", namespace, err)
	}
	for _, k := range keys {
		if err := s.provider.Del(ctx, s.entryKey(namespace, k)); err != nil {
			s.log.Warn("delete namespace: entry delete failed", Fields{"namespace": namespace, "key": k, "err": err})
		}
	}

	delete(s.keys, namespace)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == namespace })
	if err := s.provider.Del(ctx, util.KeysKey(s.prefix, namespace)); err != nil {
		s.log.Warn("delete namespace: key list delete failed", Fields{"namespace": namespace, "err": err})
	}
	if err := s.persistNamesLocked(ctx); err != nil {
		return true, err
	}
	s.hooks.NamespaceDeleted(namespace, len(keys))
	s.log.Debug("namespace deleted", Fields{"namespace": namespace, "entries": len(keys)})
	return true, nil
}

func (s *storage) ListNamespaces(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(s.order), nil
}

func (s *storage) Close(ctx context.Context) error {
	// Close gen store first (best effort)
	if s.gen != nil {
		_ = s.gen.Close(ctx)
	}
	return s.provider.Close(ctx)
}

func (s *storage) entryKey(namespace, key string) string {
	return util.EntryKey(s.prefix, namespace, key)
}

func (s *storage) snapshotGen(ctx context.Context, namespace string) (uint64, error) {
	g, err := s.gen.Snapshot(ctx, util.GenKey(s.prefix, namespace))
	if err != nil {
		s.hooks.GenStoreError(namespace, err)
		return 0, fmt.Errorf("snapshot namespace %q: %w", namespace, err)
	}
	return g, nil
}

// heal drops an unreadable entry and its catalog record.
func (s *storage) heal(ctx context.Context, namespace, key, storageKey, reason string) {
	_ = s.provider.Del(ctx, storageKey)
	s.hooks.SelfHeal(storageKey, reason)
	s.log.Debug("dropped unreadable entry", Fields{"namespace": namespace, "key": key, "reason": reason})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded && s.forgetLocked(namespace, key) {
		if err := s.persistKeysLocked(ctx, namespace); err != nil {
			s.log.Warn("catalog write failed", Fields{"err": err})
		}
	}
}

func (s *storage) forgetLocked(namespace, key string) bool {
	keys, ok := s.keys[namespace]
	if !ok {
		return false
	}
	i := slices.Index(keys, key)
	if i < 0 {
		return false
	}
	s.keys[namespace] = slices.Delete(keys, i, i+1)
	return true
}

// The catalog is one record listing namespaces in creation order plus one
// key-list record per namespace, so recording a new key rewrites only the
// list of its own namespace.
func (s *storage) loadLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	ck := util.CatalogKey(s.prefix)
	raw, ok, err := s.provider.Get(ctx, ck)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if ok {
		nss, err := wire.DecodeCatalog(raw)
		if err != nil {
			// start over; entries become unreachable through the catalog but
			// remain readable by key until their namespace is deleted
			_ = s.provider.Del(ctx, ck)
			s.hooks.SelfHeal(ck, "corrupt")
			s.log.Warn("catalog corrupt; starting empty", Fields{"key": ck})
		}
		for _, ns := range nss {
			keys, err := s.loadKeys(ctx, ns.Name)
			if err != nil {
				return err
			}
			s.order = append(s.order, ns.Name)
			s.keys[ns.Name] = keys
		}
	}
	s.loaded = true
	return nil
}

func (s *storage) loadKeys(ctx context.Context, namespace string) ([]string, error) {
	kk := util.KeysKey(s.prefix, namespace)
	raw, ok, err := s.provider.Get(ctx, kk)
	if err != nil {
		return nil, fmt.Errorf("load keys of %q: %w", namespace, err)
	}
	if !ok {
		return nil, nil
	}
	nss, err := wire.DecodeCatalog(raw)
	if err != nil || len(nss) != 1 || nss[0].Name != namespace {
		_ = s.provider.Del(ctx, kk)
		s.hooks.SelfHeal(kk, "corrupt")
		s.log.Warn("key list corrupt; namespace starts empty", Fields{"key": kk})
		return nil, nil
	}
	return nss[0].Keys, nil
}

func (s *storage) persistNamesLocked(ctx context.Context) error {
	nss := make([]wire.Namespace, 0, len(s.order))
	for _, n := range s.order {
		nss = append(nss, wire.Namespace{Name: n})
	}
	return s.write(ctx, util.CatalogKey(s.prefix), nss)
}

func (s *storage) persistKeysLocked(ctx context.Context, namespace string) error {
	kk := util.KeysKey(s.prefix, namespace)
	keys := s.keys[namespace]
	if len(keys) == 0 {
		if err := s.provider.Del(ctx, kk); err != nil {
			return fmt.Errorf("write catalog: %w", err)
		}
		return nil
	}
	return s.write(ctx, kk, []wire.Namespace{{Name: namespace, Keys: keys}})
}

func (s *storage) write(ctx context.Context, storageKey string, nss []wire.Namespace) error {
	raw, err := wire.EncodeCatalog(nss)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	ok, err := s.provider.Set(ctx, storageKey, raw, int64(len(raw)), 0)
	if err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if !ok {
		s.hooks.ProviderSetRejected(storageKey)
		return ErrStoreRejected
	}
	return nil
}
