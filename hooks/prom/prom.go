// Package promhook exports worker hook events as Prometheus counters.
package promhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/unkn0wn-root/swcache"
)

type Hooks struct {
	selfHeal      *prometheus.CounterVec
	setRejected   prometheus.Counter
	genErrors     *prometheus.CounterVec
	nsDeleted     *prometheus.CounterVec
	putFailed     prometheus.Counter
	fallbacks     *prometheus.CounterVec
	misses        prometheus.Counter
	broadcastSent *prometheus.CounterVec
}

var _ swcache.Hooks = (*Hooks)(nil)

// New registers the counters on reg. A nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "swcache"
	}
	h := &Hooks{
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "self_heal_total",
			Help: "Entries deleted on read, by reason.",
		}, []string{"reason"}),
		setRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_set_rejected_total",
			Help: "Writes the provider declined.",
		}),
		genErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "genstore_errors_total",
			Help: "Generation store failures, by cache namespace.",
		}, []string{"ns"}),
		nsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "namespace_deleted_entries_total",
			Help: "Entries removed by namespace deletion.",
		}, []string{"ns"}),
		putFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "runtime_put_failed_total",
			Help: "Detached runtime cache writes that failed.",
		}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fallback_total",
			Help: "Requests answered from cache after a network failure, by kind.",
		}, []string{"kind"}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetch_miss_total",
			Help: "Requests with neither network nor cache response.",
		}),
		broadcastSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "broadcast_messages_total",
			Help: "Update messages posted to clients, by result.",
		}, []string{"result"}),
	}
	for _, c := range []prometheus.Collector{
		h.selfHeal, h.setRejected, h.genErrors, h.nsDeleted,
		h.putFailed, h.fallbacks, h.misses, h.broadcastSent,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) SelfHeal(_, reason string)         { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) ProviderSetRejected(string)        { h.setRejected.Inc() }
func (h *Hooks) GenStoreError(ns string, _ error)  { h.genErrors.WithLabelValues(ns).Inc() }
func (h *Hooks) RuntimePutFailed(string, error)    { h.putFailed.Inc() }
func (h *Hooks) CacheFallback(_, _ string)         { h.fallbacks.WithLabelValues("cache").Inc() }
func (h *Hooks) OfflineFallback(string)            { h.fallbacks.WithLabelValues("offline").Inc() }
func (h *Hooks) FetchMiss(string, error)           { h.misses.Inc() }
func (h *Hooks) NamespaceDeleted(ns string, n int) { h.nsDeleted.WithLabelValues(ns).Add(float64(n)) }

func (h *Hooks) Broadcast(delivered, failed int) {
	h.broadcastSent.WithLabelValues("delivered").Add(float64(delivered))
	h.broadcastSent.WithLabelValues("failed").Add(float64(failed))
}
