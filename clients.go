package swcache

import (
	"context"
	"sync"
)

// MessageUpdated is broadcast to every controlled client after activation.
const MessageUpdated = "SW_UPDATED"

// Message is posted to clients.
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Client is a browsing context that can receive messages.
// PostMessage must not block on the receiver; it queues or fails.
type Client interface {
	ID() string
	PostMessage(ctx context.Context, msg Message) error
}

type clientEntry struct {
	c          Client
	controlled bool
}

// Clients is the registry of connected clients. It is in-memory only.
// After Claim, newly registered clients start out controlled.
type Clients struct {
	mu      sync.RWMutex
	m       map[string]*clientEntry
	order   []string
	claimed bool
}

func NewClients() *Clients {
	return &Clients{m: make(map[string]*clientEntry)}
}

// Register adds c, replacing any client with the same ID.
func (cs *Clients) Register(c Client) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	id := c.ID()
	if _, ok := cs.m[id]; !ok {
		cs.order = append(cs.order, id)
	}
	cs.m[id] = &clientEntry{c: c, controlled: cs.claimed}
}

func (cs *Clients) Unregister(id string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.m[id]; !ok {
		return
	}
	delete(cs.m, id)
	for i, o := range cs.order {
		if o == id {
			cs.order = append(cs.order[:i], cs.order[i+1:]...)
			break
		}
	}
}

// Claim takes control of every registered client and returns how many
// were not controlled before.
func (cs *Clients) Claim() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.claimed = true
	n := 0
	for _, e := range cs.m {
		if !e.controlled {
			e.controlled = true
			n++
		}
	}
	return n
}

// Controlled returns the controlled clients in registration order.
func (cs *Clients) Controlled() []Client {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]Client, 0, len(cs.order))
	for _, id := range cs.order {
		if e := cs.m[id]; e.controlled {
			out = append(out, e.c)
		}
	}
	return out
}

func (cs *Clients) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.m)
}

// Broadcast posts msg once to every controlled client. Delivery is not
// acknowledged; failures are counted, not retried.
func (cs *Clients) Broadcast(ctx context.Context, msg Message) (delivered int, failed map[string]error) {
	for _, c := range cs.Controlled() {
		if err := c.PostMessage(ctx, msg); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[c.ID()] = err
			continue
		}
		delivered++
	}
	return delivered, failed
}
