// Package redis stores cache entries in Redis so that several proxy
// replicas, and the inspect command, share one set of namespaces.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/swcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

type Provider struct {
	rdb         goredis.UniversalClient
	closeClient bool
	timeout     time.Duration
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Client goredis.UniversalClient
	// CloseClient hands ownership of Client to the provider.
	CloseClient bool
	// OpTimeout bounds each command when the caller's context has no deadline.
	// 0 leaves it to the client's own timeouts.
	OpTimeout time.Duration
}

func New(cfg Config) (*Provider, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Provider{rdb: cfg.Client, closeClient: cfg.CloseClient, timeout: cfg.OpTimeout}, nil
}

func (p *Provider) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := p.ctx(ctx)
	defer cancel()
	b, err := p.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

// Set ignores cost; Redis memory policy is configured server-side.
func (p *Provider) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	ctx, cancel := p.ctx(ctx)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	if err := p.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(ctx context.Context, key string) error {
	ctx, cancel := p.ctx(ctx)
	defer cancel()
	return p.rdb.Del(ctx, key).Err()
}

// Close is a no-op unless the provider owns the client. Repeated calls are safe.
func (p *Provider) Close(context.Context) error {
	if !p.closeClient {
		return nil
	}
	if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
