package config

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/swcache"
	"github.com/unkn0wn-root/swcache/codec"
	"github.com/unkn0wn-root/swcache/genstore"
	"github.com/unkn0wn-root/swcache/provider"
	"github.com/unkn0wn-root/swcache/provider/bigcache"
	"github.com/unkn0wn-root/swcache/provider/gocache"
	"github.com/unkn0wn-root/swcache/provider/redis"
	"github.com/unkn0wn-root/swcache/provider/ristretto"
)

// OpenStorage builds the cache storage described by sc. Closing the
// returned storage closes the provider and generation store.
func OpenStorage(ctx context.Context, sc StorageConfig, log swcache.Logger, hooks swcache.Hooks) (swcache.CacheStorage, error) {
	cd, err := responseCodec(sc.Codec)
	if err != nil {
		return nil, err
	}

	var rdb goredis.UniversalClient
	if sc.Provider == "redis" || sc.GenStore == "redis" {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("config: redis %s: %w", sc.Redis.Addr, err)
		}
	}

	p, err := openProvider(ctx, sc, rdb)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}

	var gs genstore.GenStore
	switch sc.GenStore {
	case "redis":
		// the provider owns the client when it is redis too
		gs = genstore.NewRedisGenStore(rdb, coalesce(sc.KeyPrefix, "swcache"), sc.Provider != "redis")
	default:
		gs = genstore.NewLocalGenStore()
	}

	return swcache.NewStorage(swcache.StorageOptions{
		Provider:      p,
		Codec:         cd,
		GenStore:      gs,
		KeyPrefix:     sc.KeyPrefix,
		MaxEntryBytes: sc.MaxEntryBytes,
		Logger:        log,
		Hooks:         hooks,
	})
}

func responseCodec(name string) (codec.Codec[swcache.Response], error) {
	if name == "protobuf" {
		return swcache.ProtoCodec{}, nil
	}
	cd, err := codec.New[swcache.Response](name)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cd, nil
}

func openProvider(ctx context.Context, sc StorageConfig, rdb goredis.UniversalClient) (provider.Provider, error) {
	switch sc.Provider {
	case "", "memory":
		return gocache.New(0), nil
	case "bigcache":
		p, err := bigcache.New(ctx, bigcache.Config{
			LifeWindow:         sc.Bigcache.LifeWindow,
			CleanWindow:        sc.Bigcache.CleanWindow,
			HardMaxCacheSizeMB: sc.Bigcache.MaxSizeMB,
		})
		if err != nil {
			return nil, fmt.Errorf("config: bigcache: %w", err)
		}
		return p, nil
	case "ristretto":
		p, err := ristretto.New(ristretto.Config{
			NumCounters: sc.Ristretto.NumCounters,
			MaxCost:     sc.Ristretto.MaxCost,
			BufferItems: 64,
			SyncWrites:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("config: ristretto: %w", err)
		}
		return p, nil
	case "redis":
		p, err := redis.New(redis.Config{Client: rdb, CloseClient: true, OpTimeout: 2 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("config: redis provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("config: unknown storage.provider %q", sc.Provider)
	}
}

func coalesce(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
