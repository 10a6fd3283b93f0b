package swcache

import (
	"context"
	"errors"
	"testing"
)

func TestClientsClaimAndBroadcast(t *testing.T) {
	cs := NewClients()
	a, b := &fakeClient{id: "a"}, &fakeClient{id: "b"}
	cs.Register(a)
	cs.Register(b)

	// nothing is controlled until Claim
	if d, f := cs.Broadcast(context.Background(), Message{Type: MessageUpdated}); d != 0 || f != nil {
		t.Fatalf("pre-claim broadcast delivered=%d failed=%v", d, f)
	}
	if n := cs.Claim(); n != 2 {
		t.Fatalf("Claim = %d, want 2", n)
	}
	if n := cs.Claim(); n != 0 {
		t.Fatalf("second Claim = %d, want 0", n)
	}

	cs.Register(&fakeClient{id: "c", fail: errors.New("gone")})
	d, f := cs.Broadcast(context.Background(), Message{Type: MessageUpdated, Message: "x"})
	if d != 2 || len(f) != 1 || f["c"] == nil {
		t.Fatalf("delivered=%d failed=%v", d, f)
	}
	if len(a.received()) != 1 || len(b.received()) != 1 {
		t.Fatalf("a=%v b=%v", a.received(), b.received())
	}
}

func TestClientsRegisterOrderAndUnregister(t *testing.T) {
	cs := NewClients()
	for _, id := range []string{"x", "y", "z"} {
		cs.Register(&fakeClient{id: id})
	}
	cs.Claim()
	cs.Register(&fakeClient{id: "y"}) // replace keeps position
	cs.Unregister("x")
	cs.Unregister("missing")

	got := cs.Controlled()
	if len(got) != 2 || got[0].ID() != "y" || got[1].ID() != "z" {
		ids := make([]string, 0, len(got))
		for _, c := range got {
			ids = append(ids, c.ID())
		}
		t.Fatalf("controlled = %v", ids)
	}
	if cs.Len() != 2 {
		t.Fatalf("Len = %d", cs.Len())
	}
}
