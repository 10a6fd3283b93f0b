package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/swcache"
	logruslog "github.com/unkn0wn-root/swcache/log/logrus"
	sloglog "github.com/unkn0wn-root/swcache/log/slog"
	zaplog "github.com/unkn0wn-root/swcache/log/zap"
)

// NewLogger builds the configured backend. sync flushes buffered output.
func NewLogger(lc LogConfig) (log swcache.Logger, sync func(), err error) {
	switch lc.Backend {
	case "", "zap":
		lvl, err := zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("config: log.level: %w", err)
		}
		zc := zap.NewProductionConfig()
		if lc.Format == "console" {
			zc = zap.NewDevelopmentConfig()
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
		zl, err := zc.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("config: build zap: %w", err)
		}
		return zaplog.New(zl.Named("swcache")), func() { _ = zl.Sync() }, nil

	case "logrus":
		lvl, err := logrus.ParseLevel(lc.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("config: log.level: %w", err)
		}
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(lvl)
		if lc.Format == "console" {
			l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		} else {
			l.SetFormatter(&logrus.JSONFormatter{})
		}
		return logruslog.New(l, "swcache"), func() {}, nil

	case "slog":
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(lc.Level)); err != nil {
			return nil, nil, fmt.Errorf("config: log.level: %w", err)
		}
		opts := &slog.HandlerOptions{Level: lvl}
		var h slog.Handler = slog.NewJSONHandler(os.Stderr, opts)
		if lc.Format == "console" {
			h = slog.NewTextHandler(os.Stderr, opts)
		}
		return sloglog.New(slog.New(h)), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("config: unknown log.backend %q", lc.Backend)
	}
}
