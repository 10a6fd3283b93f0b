package sloghook

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSamplingAndRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := New(l, Options{SelfHealEvery: 3, Redact: func(string) string { return "<k>" }})

	for i := 0; i < 6; i++ {
		h.SelfHeal("swcache:entry:ns:abc", "corrupt")
	}
	if n := strings.Count(buf.String(), "swcache.self_heal"); n != 2 {
		t.Fatalf("logged %d self-heals, want 2:\n%s", n, buf.String())
	}
	if strings.Contains(buf.String(), "abc") || !strings.Contains(buf.String(), "key=<k>") {
		t.Fatalf("key not redacted:\n%s", buf.String())
	}
}

func TestDefaultRedactAndNilLogger(t *testing.T) {
	var buf bytes.Buffer
	h := New(slog.New(slog.NewTextHandler(&buf, nil)), Options{})
	h.FetchMiss("GET https://shop.test/secret", nil)
	if strings.Contains(buf.String(), "secret") {
		t.Fatalf("raw key logged: %s", buf.String())
	}
	New(nil, Options{}).Broadcast(1, 0)
}
