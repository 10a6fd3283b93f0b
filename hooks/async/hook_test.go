package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/swcache"
	"go.uber.org/goleak"
)

type counting struct {
	swcache.NopHooks
	mu      sync.Mutex
	fallbks int
	block   chan struct{}
}

func (c *counting) CacheFallback(string, string) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	c.fallbks++
	c.mu.Unlock()
}

func TestCloseDrainsQueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	inner := &counting{}
	h := New(inner, 2, 64)
	for i := 0; i < 50; i++ {
		h.CacheFallback("GET /a.js", "dovini-cache-v1")
	}
	h.Close()
	h.Close()

	if inner.fallbks != 50 {
		t.Fatalf("delivered %d events, want 50", inner.fallbks)
	}
	h.CacheFallback("GET /late.js", "dovini-cache-v1")
	if h.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", h.Dropped())
	}
}

func TestFullQueueDrops(t *testing.T) {
	defer goleak.VerifyNone(t)

	inner := &counting{block: make(chan struct{})}
	h := New(inner, 1, 1)
	// one event in flight, one queued, the rest dropped
	for i := 0; i < 10; i++ {
		h.CacheFallback("k", "ns")
	}
	close(inner.block)
	h.Close()

	if got := uint64(inner.fallbks) + h.Dropped(); got != 10 {
		t.Fatalf("delivered+dropped = %d, want 10", got)
	}
	if h.Dropped() == 0 {
		t.Fatal("expected drops with a full queue")
	}
}
