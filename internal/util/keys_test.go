package util

import (
	"strings"
	"testing"
)

func TestEntryKeyIsolatesNamespaces(t *testing.T) {
	a := EntryKey("swcache", "dovini-cache-v1", "GET https://shop.test/logo.png")
	b := EntryKey("swcache", "dovini-static-v1", "GET https://shop.test/logo.png")
	if a == b {
		t.Fatalf("same request in different namespaces must not share a key: %s", a)
	}
	if !strings.HasPrefix(a, "swcache:entry:dovini-cache-v1:") {
		t.Fatalf("unexpected key layout: %s", a)
	}
}

func TestEntryKeyDeterministicAndBounded(t *testing.T) {
	long := "GET https://shop.test/" + strings.Repeat("x", 4096)
	k1 := EntryKey("p", "ns", long)
	k2 := EntryKey("p", "ns", long)
	if k1 != k2 {
		t.Fatalf("not deterministic: %s vs %s", k1, k2)
	}
	if want := len("p:entry:ns:") + 32; len(k1) != want {
		t.Fatalf("key length = %d, want %d", len(k1), want)
	}
}

func TestKeysKeyPerNamespace(t *testing.T) {
	if KeysKey("swcache", "a") == KeysKey("swcache", "b") {
		t.Fatalf("namespaces must not share a key list")
	}
	if KeysKey("swcache", "a") == CatalogKey("swcache") {
		t.Fatalf("key list collides with catalog")
	}
}
