// Package config loads swcache settings from a YAML file, SWCACHE_* env
// variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "SWCACHE"

type Config struct {
	Listen string `mapstructure:"listen"`
	// Origin is the public scheme://host the worker controls.
	Origin string `mapstructure:"origin"`
	// Upstream receives proxied requests. Empty means Origin.
	Upstream string `mapstructure:"upstream"`

	Cache   CacheConfig   `mapstructure:"cache"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Metrics bool          `mapstructure:"metrics"`
}

type CacheConfig struct {
	NamePrefix      string   `mapstructure:"name_prefix"`
	Version         string   `mapstructure:"version"`
	Seeds           []string `mapstructure:"seeds"`
	SkipWaiting     bool     `mapstructure:"skip_waiting"`
	PreserveCurrent bool     `mapstructure:"preserve_current"`
	UpdateMessage   string   `mapstructure:"update_message"`
}

type StorageConfig struct {
	Provider      string `mapstructure:"provider"` // memory | bigcache | ristretto | redis
	Codec         string `mapstructure:"codec"`    // msgpack | json | cbor | protobuf
	GenStore      string `mapstructure:"genstore"` // local | redis
	KeyPrefix     string `mapstructure:"key_prefix"`
	MaxEntryBytes int    `mapstructure:"max_entry_bytes"`

	Bigcache  BigcacheConfig  `mapstructure:"bigcache"`
	Ristretto RistrettoConfig `mapstructure:"ristretto"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

type BigcacheConfig struct {
	LifeWindow  time.Duration `mapstructure:"life_window"`
	CleanWindow time.Duration `mapstructure:"clean_window"`
	MaxSizeMB   int           `mapstructure:"max_size_mb"`
}

type RistrettoConfig struct {
	NumCounters int64 `mapstructure:"num_counters"`
	MaxCost     int64 `mapstructure:"max_cost"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Backend string `mapstructure:"backend"` // zap | logrus | slog
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"` // json | console
	// Events logs worker hook events through log/slog, sampled.
	Events bool `mapstructure:"events"`
}

type AuthConfig struct {
	LoginURL   string        `mapstructure:"login_url"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// SetDefaults registers every key so env variables bind without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("origin", "")
	v.SetDefault("upstream", "")
	v.SetDefault("metrics", true)

	v.SetDefault("cache.name_prefix", "dovini")
	v.SetDefault("cache.version", "v1")
	v.SetDefault("cache.seeds", []string{"/", "/index.html"})
	v.SetDefault("cache.skip_waiting", true)
	v.SetDefault("cache.preserve_current", false)
	v.SetDefault("cache.update_message", "")

	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.codec", "msgpack")
	v.SetDefault("storage.genstore", "local")
	v.SetDefault("storage.key_prefix", "swcache")
	v.SetDefault("storage.max_entry_bytes", 0)
	v.SetDefault("storage.bigcache.life_window", 24*time.Hour)
	v.SetDefault("storage.bigcache.clean_window", 5*time.Minute)
	v.SetDefault("storage.bigcache.max_size_mb", 256)
	v.SetDefault("storage.ristretto.num_counters", int64(1_000_000))
	v.SetDefault("storage.ristretto.max_cost", int64(256<<20))
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)

	v.SetDefault("log.backend", "zap")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.events", false)

	v.SetDefault("auth.login_url", "")
	v.SetDefault("auth.session_ttl", 12*time.Hour)
}

// Load reads path (if non-empty) into v and decodes the result.
// Flags bound on v before Load take precedence over file and env.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Origin == "" {
		errs = append(errs, errors.New("origin is required"))
	} else if u, err := url.Parse(c.Origin); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("origin %q must be an absolute URL", c.Origin))
	}
	if c.Upstream != "" {
		if u, err := url.Parse(c.Upstream); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("upstream %q must be an absolute URL", c.Upstream))
		}
	}
	if !oneOf(c.Storage.Provider, "memory", "bigcache", "ristretto", "redis") {
		errs = append(errs, fmt.Errorf("unknown storage.provider %q", c.Storage.Provider))
	}
	if !oneOf(c.Storage.Codec, "msgpack", "json", "cbor", "protobuf") {
		errs = append(errs, fmt.Errorf("unknown storage.codec %q", c.Storage.Codec))
	}
	if !oneOf(c.Storage.GenStore, "local", "redis") {
		errs = append(errs, fmt.Errorf("unknown storage.genstore %q", c.Storage.GenStore))
	}
	if c.Storage.Provider == "redis" && c.Storage.GenStore != "redis" {
		errs = append(errs, errors.New("storage.provider redis needs storage.genstore redis"))
	}
	if !oneOf(c.Log.Backend, "zap", "logrus", "slog") {
		errs = append(errs, fmt.Errorf("unknown log.backend %q", c.Log.Backend))
	}
	if !oneOf(c.Log.Format, "json", "console") {
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// UpstreamURL returns Upstream, or Origin when unset.
func (c *Config) UpstreamURL() string {
	if c.Upstream != "" {
		return c.Upstream
	}
	return c.Origin
}

func oneOf(s string, allowed ...string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
