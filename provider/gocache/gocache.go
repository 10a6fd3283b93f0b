// Package gocache adapts patrickmn/go-cache as an in-process provider.
// It is the default "memory" store: no size bound, per-entry TTL, and an
// optional janitor for expired entries.
package gocache

import (
	"context"
	"time"

	gc "github.com/patrickmn/go-cache"

	pr "github.com/unkn0wn-root/swcache/provider"
)

type Provider struct {
	c *gc.Cache
}

var _ pr.Provider = (*Provider)(nil)

// New creates a provider. cleanupInterval<=0 disables the janitor goroutine.
func New(cleanupInterval time.Duration) *Provider {
	return &Provider{c: gc.New(gc.NoExpiration, cleanupInterval)}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		p.c.Delete(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = gc.NoExpiration
	}
	// copy: callers may reuse their buffer, and go-cache stores the slice as-is
	p.c.Set(key, append([]byte(nil), value...), ttl)
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Delete(key)
	return nil
}

// Close drops all entries. go-cache stops its janitor when the cache is collected.
func (p *Provider) Close(_ context.Context) error {
	p.c.Flush()
	return nil
}

// ItemCount reports the number of stored keys, expired ones included.
func (p *Provider) ItemCount() int { return p.c.ItemCount() }
