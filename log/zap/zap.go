// Package zap adapts a *zap.Logger to swcache.Logger.
package zap

import (
	"sort"

	"github.com/unkn0wn-root/swcache"
	"go.uber.org/zap"
)

var _ swcache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l}
}

func (z Logger) Debug(msg string, f swcache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f swcache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f swcache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f swcache.Fields) { z.L.Error(msg, zf(f)...) }

// zf converts fields in key order so output is stable.
func zf(f swcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
