// Package sloghook logs worker hook events through log/slog.
package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/swcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	FallbackEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	fallbackCtr atomic.Uint64
}

var _ swcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("swcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("swcache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) GenStoreError(namespace string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("swcache.genstore_error",
		"ns", namespace,
		"err", err)
}

func (h *Hooks) NamespaceDeleted(namespace string, entries int) {
	if h.l == nil {
		return
	}
	h.l.Info("swcache.namespace_deleted",
		"ns", namespace,
		"entries", entries)
}

func (h *Hooks) RuntimePutFailed(requestKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("swcache.runtime_put_failed",
		"key", h.redact(requestKey),
		"err", err)
}

func (h *Hooks) CacheFallback(requestKey, namespace string) {
	if h.l == nil || !sample(h.opts.FallbackEvery, &h.fallbackCtr) {
		return
	}
	h.l.Info("swcache.cache_fallback",
		"key", h.redact(requestKey),
		"ns", namespace)
}

func (h *Hooks) OfflineFallback(requestKey string) {
	if h.l == nil || !sample(h.opts.FallbackEvery, &h.fallbackCtr) {
		return
	}
	h.l.Info("swcache.offline_fallback",
		"key", h.redact(requestKey))
}

func (h *Hooks) FetchMiss(requestKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("swcache.fetch_miss",
		"key", h.redact(requestKey),
		"err", err)
}

func (h *Hooks) Broadcast(delivered, failed int) {
	if h.l == nil {
		return
	}
	h.l.Info("swcache.broadcast",
		"delivered", delivered,
		"failed", failed)
}
