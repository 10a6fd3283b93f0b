package swcache

import "testing"

func TestMultiHooks(t *testing.T) {
	if _, ok := MultiHooks().(NopHooks); !ok {
		t.Fatalf("empty MultiHooks should be NopHooks")
	}
	a := &recHooks{}
	if MultiHooks(nil, a) != Hooks(a) {
		t.Fatalf("single hook should be returned as is")
	}

	b := &recHooks{}
	m := MultiHooks(a, nil, b)
	m.OfflineFallback("GET https://shop.test/x")
	m.Broadcast(2, 1)
	for _, h := range []*recHooks{a, b} {
		if len(h.offline) != 1 || h.delivered != 2 || h.failed != 1 {
			t.Fatalf("hook missed events: %+v", h)
		}
	}
}
