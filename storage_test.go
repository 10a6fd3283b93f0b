package swcache

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	c "github.com/unkn0wn-root/swcache/codec"
	gen "github.com/unkn0wn-root/swcache/genstore"
	"github.com/unkn0wn-root/swcache/internal/util"
	"github.com/unkn0wn-root/swcache/internal/wire"
	pr "github.com/unkn0wn-root/swcache/provider"
)

type memProvider struct {
	mu      sync.Mutex
	m       map[string][]byte
	failSet error // returned by Set when non-nil
	reject  bool  // Set returns ok=false
	writes  map[string]int
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider {
	return &memProvider{m: make(map[string][]byte), writes: make(map[string]int)}
}

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSet != nil {
		return false, p.failSet
	}
	if p.reject {
		return false, nil
	}
	p.m[key] = append([]byte(nil), value...)
	p.writes[key]++
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

func (p *memProvider) setFail(err error) {
	p.mu.Lock()
	p.failSet = err
	p.mu.Unlock()
}

func (p *memProvider) writesOf(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes[key]
}

func (p *memProvider) has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[key]
	return ok
}

func (p *memProvider) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

type healEvent struct{ key, reason string }

type recHooks struct {
	NopHooks
	mu        sync.Mutex
	heals     []healEvent
	putFails  []string
	fallbacks []string
	offline   []string
	misses    []string
	deleted   []string
	delivered int
	failed    int
}

func (h *recHooks) SelfHeal(k, r string) {
	h.mu.Lock()
	h.heals = append(h.heals, healEvent{k, r})
	h.mu.Unlock()
}
func (h *recHooks) RuntimePutFailed(k string, _ error) {
	h.mu.Lock()
	h.putFails = append(h.putFails, k)
	h.mu.Unlock()
}
func (h *recHooks) CacheFallback(k, _ string) {
	h.mu.Lock()
	h.fallbacks = append(h.fallbacks, k)
	h.mu.Unlock()
}
func (h *recHooks) OfflineFallback(k string) {
	h.mu.Lock()
	h.offline = append(h.offline, k)
	h.mu.Unlock()
}
func (h *recHooks) FetchMiss(k string, _ error) {
	h.mu.Lock()
	h.misses = append(h.misses, k)
	h.mu.Unlock()
}
func (h *recHooks) NamespaceDeleted(ns string, _ int) {
	h.mu.Lock()
	h.deleted = append(h.deleted, ns)
	h.mu.Unlock()
}
func (h *recHooks) Broadcast(d, f int) {
	h.mu.Lock()
	h.delivered, h.failed = d, f
	h.mu.Unlock()
}

func newTestStorage(t *testing.T, mp pr.Provider, optsOpt func(*StorageOptions)) *storage {
	t.Helper()
	opts := StorageOptions{Provider: mp}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	s, err := newStorage(opts)
	if err != nil {
		t.Fatalf("newStorage: %v", err)
	}
	return s
}

func testResp(status int, body string) *Response {
	return &Response{
		Status: status,
		Header: http.Header{"Content-Type": {"text/plain"}},
		Body:   []byte(body),
	}
}

func TestNewStorageRequiresProvider(t *testing.T) {
	if _, err := NewStorage(StorageOptions{}); err == nil {
		t.Fatalf("expected error without provider")
	}
}

func TestStoragePutGetAndKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newMemProvider(), nil)

	const ns, k = "dovini-cache-v1", "GET https://shop.test/logo.png"
	if _, ok, err := s.Get(ctx, ns, k); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := s.Put(ctx, ns, k, testResp(200, "png")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// overwrite: last writer wins, no duplicate key
	if err := s.Put(ctx, ns, k, testResp(200, "png2")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get(ctx, ns, k)
	if err != nil || !ok {
		t.Fatalf("Get ok=%v err=%v", ok, err)
	}
	if got.Status != 200 || string(got.Body) != "png2" || got.Header.Get("Content-Type") != "text/plain" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	keys, err := s.Keys(ctx, ns)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != k {
		t.Fatalf("keys = %v", keys)
	}
	names, _ := s.ListNamespaces(ctx)
	if len(names) != 1 || names[0] != ns {
		t.Fatalf("namespaces = %v", names)
	}
}

func TestStorageMatchSearchesInCreationOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newMemProvider(), nil)

	const k = "GET https://shop.test/style.css"
	if err := s.Open(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "second", k, testResp(200, "from-second")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "first", k, testResp(200, "from-first")); err != nil {
		t.Fatal(err)
	}

	got, ns, ok, err := s.Match(ctx, k)
	if err != nil || !ok {
		t.Fatalf("Match ok=%v err=%v", ok, err)
	}
	if ns != "first" || string(got.Body) != "from-first" {
		t.Fatalf("matched %s %q, want first", ns, got.Body)
	}

	if _, _, ok, _ := s.Match(ctx, "GET https://shop.test/none.css"); ok {
		t.Fatalf("expected miss")
	}
}

func TestStorageDeleteNamespaceMakesEntriesUnreadable(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	s := newTestStorage(t, mp, func(o *StorageOptions) { o.Hooks = h })

	const ns, k = "dovini-cache-v1", "GET https://shop.test/a.js"
	if err := s.Put(ctx, ns, k, testResp(200, "js")); err != nil {
		t.Fatal(err)
	}

	// keep a copy of the raw entry to replay after the delete
	ek := s.entryKey(ns, k)
	raw, _, _ := mp.Get(ctx, ek)

	existed, err := s.DeleteNamespace(ctx, ns)
	if err != nil || !existed {
		t.Fatalf("DeleteNamespace existed=%v err=%v", existed, err)
	}
	if _, ok, _ := mp.Get(ctx, ek); ok {
		t.Fatalf("entry not physically removed")
	}
	if existed, _ := s.DeleteNamespace(ctx, ns); existed {
		t.Fatalf("second delete should report false")
	}

	// a replica that missed the delete writes the old entry back
	if _, err := mp.Set(ctx, ek, raw, 1, 0); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Get(ctx, ns, k); err != nil || ok {
		t.Fatalf("stale-generation entry must miss, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := mp.Get(ctx, ek); ok {
		t.Fatalf("stale entry was not self-healed")
	}
	if len(h.heals) != 1 || h.heals[0].reason != "gen_mismatch" {
		t.Fatalf("heals = %+v", h.heals)
	}
	if len(h.deleted) != 1 || h.deleted[0] != ns {
		t.Fatalf("deleted hooks = %v", h.deleted)
	}
}

func TestStorageSelfHealOnCorrupt(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	s := newTestStorage(t, mp, func(o *StorageOptions) { o.Hooks = h })

	const ns, k = "n", "GET https://shop.test/x.png"
	if err := s.Put(ctx, ns, k, testResp(200, "x")); err != nil {
		t.Fatal(err)
	}
	ek := s.entryKey(ns, k)
	if _, err := mp.Set(ctx, ek, []byte("not-wire-format"), 1, 0); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := s.Get(ctx, ns, k); err != nil || ok {
		t.Fatalf("Get on corrupt should miss, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := mp.Get(ctx, ek); ok {
		t.Fatalf("corrupt entry was not deleted by self-heal")
	}
	keys, _ := s.Keys(ctx, ns)
	if len(keys) != 0 {
		t.Fatalf("healed key still listed: %v", keys)
	}

	// valid framing, undecodable payload
	if _, err := mp.Set(ctx, ek, wire.EncodeEntry(0, []byte{0xc1}), 1, 0); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, ns, k); ok {
		t.Fatalf("Get on undecodable payload should miss")
	}
	if len(h.heals) != 2 || h.heals[0].reason != "corrupt" || h.heals[1].reason != "value_decode" {
		t.Fatalf("heals = %+v", h.heals)
	}
}

func TestStorageCatalogSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	gs := gen.NewLocalGenStore()

	s1 := newTestStorage(t, mp, func(o *StorageOptions) { o.GenStore = gs })
	if err := s1.Open(ctx, "dovini-static-v1"); err != nil {
		t.Fatal(err)
	}
	if err := s1.Put(ctx, "dovini-cache-v1", "GET https://shop.test/", testResp(200, "root")); err != nil {
		t.Fatal(err)
	}

	s2 := newTestStorage(t, mp, func(o *StorageOptions) { o.GenStore = gs })
	names, err := s2.ListNamespaces(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "dovini-static-v1" || names[1] != "dovini-cache-v1" {
		t.Fatalf("names after restart = %v", names)
	}
	got, _, ok, err := s2.Match(ctx, "GET https://shop.test/")
	if err != nil || !ok || string(got.Body) != "root" {
		t.Fatalf("Match after restart ok=%v err=%v", ok, err)
	}
}

func TestStorageNewKeyRewritesOnlyItsNamespace(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	s := newTestStorage(t, mp, nil)
	if err := s.Put(ctx, "static", "GET https://shop.test/a.js", testResp(200, "a")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "runtime", "GET https://shop.test/b.js", testResp(200, "b")); err != nil {
		t.Fatal(err)
	}

	ck := util.CatalogKey(defaultKeyPrefix)
	sk := util.KeysKey(defaultKeyPrefix, "static")
	rk := util.KeysKey(defaultKeyPrefix, "runtime")
	catalogWrites, staticWrites, runtimeWrites := mp.writesOf(ck), mp.writesOf(sk), mp.writesOf(rk)

	if err := s.Put(ctx, "runtime", "GET https://shop.test/c.js", testResp(200, "c")); err != nil {
		t.Fatal(err)
	}
	if mp.writesOf(ck) != catalogWrites || mp.writesOf(sk) != staticWrites {
		t.Fatalf("new key in runtime rewrote catalog (%d->%d) or static keys (%d->%d)",
			catalogWrites, mp.writesOf(ck), staticWrites, mp.writesOf(sk))
	}
	if mp.writesOf(rk) != runtimeWrites+1 {
		t.Fatalf("runtime key list writes = %d, want %d", mp.writesOf(rk), runtimeWrites+1)
	}

	// overwriting a known key leaves the catalog alone
	if err := s.Put(ctx, "runtime", "GET https://shop.test/c.js", testResp(200, "c2")); err != nil {
		t.Fatal(err)
	}
	if mp.writesOf(rk) != runtimeWrites+1 {
		t.Fatalf("overwrite rewrote the key list")
	}

	s2 := newTestStorage(t, mp, nil)
	keys, err := s2.Keys(ctx, "runtime")
	if err != nil || len(keys) != 2 {
		t.Fatalf("keys after restart = %v err=%v", keys, err)
	}

	if _, err := s2.DeleteNamespace(ctx, "runtime"); err != nil {
		t.Fatal(err)
	}
	if mp.has(rk) {
		t.Fatalf("key list of deleted namespace still stored")
	}
}

func TestStorageCorruptKeyListStartsNamespaceEmpty(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	s1 := newTestStorage(t, mp, nil)
	if err := s1.Put(ctx, "n", "GET https://shop.test/a.js", testResp(200, "a")); err != nil {
		t.Fatal(err)
	}
	kk := util.KeysKey(defaultKeyPrefix, "n")
	mp.m[kk] = []byte("garbage")

	h := &recHooks{}
	s2 := newTestStorage(t, mp, func(o *StorageOptions) { o.Hooks = h })
	names, err := s2.ListNamespaces(ctx)
	if err != nil || len(names) != 1 || names[0] != "n" {
		t.Fatalf("names=%v err=%v", names, err)
	}
	if keys, _ := s2.Keys(ctx, "n"); len(keys) != 0 {
		t.Fatalf("keys = %v", keys)
	}
	if len(h.heals) != 1 || h.heals[0].key != kk || h.heals[0].reason != "corrupt" {
		t.Fatalf("heals = %+v", h.heals)
	}
}

func TestStorageCorruptCatalogStartsEmpty(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	if _, err := mp.Set(ctx, util.CatalogKey(defaultKeyPrefix), []byte("garbage"), 1, 0); err != nil {
		t.Fatal(err)
	}
	h := &recHooks{}
	s := newTestStorage(t, mp, func(o *StorageOptions) { o.Hooks = h })
	names, err := s.ListNamespaces(ctx)
	if err != nil || len(names) != 0 {
		t.Fatalf("names=%v err=%v", names, err)
	}
	if len(h.heals) != 1 || h.heals[0].reason != "corrupt" {
		t.Fatalf("heals = %+v", h.heals)
	}
}

func TestStoragePutRejectedByProvider(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	mp.reject = true
	s := newTestStorage(t, mp, nil)
	if err := s.Put(ctx, "n", "GET https://shop.test/a.js", testResp(200, "x")); !errors.Is(err, ErrStoreRejected) {
		t.Fatalf("want ErrStoreRejected, got %v", err)
	}
}

func TestStorageMaxEntryBytes(t *testing.T) {
	ctx := context.Background()
	mp := newMemProvider()
	h := &recHooks{}
	s := newTestStorage(t, mp, func(o *StorageOptions) {
		o.Codec = c.JSON[Response]{}
		o.MaxEntryBytes = 64
		o.Hooks = h
	})
	const k = "GET https://shop.test/big.js"
	big := &Response{Status: 200, Body: make([]byte, 1024)}
	if err := s.Put(ctx, "n", k, big); !errors.Is(err, c.ErrTooLarge) {
		t.Fatalf("Put: want ErrTooLarge, got %v", err)
	}

	// a replica without the limit wrote it anyway
	payload, _ := c.JSON[Response]{}.Encode(*big)
	ek := util.EntryKey("swcache", "n", k)
	mp.m[ek] = wire.EncodeEntry(0, payload)
	if _, ok, _ := s.Get(ctx, "n", k); ok {
		t.Fatalf("oversized entry must be rejected on read")
	}
	if len(h.heals) != 1 || h.heals[0].reason != "value_decode" {
		t.Fatalf("heals = %+v", h.heals)
	}
}

func TestStorageDeleteEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newMemProvider(), nil)
	const k = "GET https://shop.test/"
	if err := s.Put(ctx, "n", k, testResp(200, "x")); err != nil {
		t.Fatal(err)
	}
	existed, err := s.Delete(ctx, "n", k)
	if err != nil || !existed {
		t.Fatalf("Delete existed=%v err=%v", existed, err)
	}
	if existed, _ := s.Delete(ctx, "n", k); existed {
		t.Fatalf("second Delete should report false")
	}
	if keys, _ := s.Keys(ctx, "n"); len(keys) != 0 {
		t.Fatalf("keys = %v", keys)
	}
}
