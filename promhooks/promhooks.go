// Package promhooks exports cache events as Prometheus metrics.
package promhooks

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unkn0wn-root/voxcache"
)

// Hooks counts cache events per data kind. Safe for concurrent use.
type Hooks struct {
	registry *prometheus.Registry

	hits        *prometheus.CounterVec
	misses      *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	loadErrors  *prometheus.CounterVec
	sharedLoads *prometheus.CounterVec
	tierHits    *prometheus.CounterVec
	tierErrors  *prometheus.CounterVec
	maxEntries  *prometheus.GaugeVec
	evictBytes  *prometheus.CounterVec
}

var _ voxcache.Hooks = (*Hooks)(nil)

// New creates the metrics on a fresh registry. namespace prefixes every metric name
// and defaults to "voxcache".
func New(namespace string) *Hooks {
	if namespace == "" {
		namespace = "voxcache"
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	h := &Hooks{
		registry:    prometheus.NewRegistry(),
		hits:        counter("hits_total", "L1 cache hits", "kind"),
		misses:      counter("misses_total", "L1 cache misses", "kind"),
		evictions:   counter("evictions_total", "Entries evicted from L1", "kind", "reason"),
		evictBytes:  counter("evicted_bytes_total", "Bytes evicted from L1", "kind"),
		loadErrors:  counter("load_errors_total", "Loader failures", "kind"),
		sharedLoads: counter("shared_loads_total", "Gets that joined an in-flight load", "kind"),
		tierHits:    counter("tier_hits_total", "Spill tier hits on L1 miss", "kind"),
		tierErrors:  counter("tier_errors_total", "Spill tier failures", "kind", "op"),
		maxEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_entries",
			Help:      "Entry capacity derived from the first inserted entry",
		}, []string{"kind"}),
	}
	h.registry.MustRegister(
		h.hits,
		h.misses,
		h.evictions,
		h.evictBytes,
		h.loadErrors,
		h.sharedLoads,
		h.tierHits,
		h.tierErrors,
		h.maxEntries,
	)
	return h
}

// Registry exposes the underlying registry, e.g. to add process collectors.
func (h *Hooks) Registry() *prometheus.Registry { return h.registry }

func (h *Hooks) Hit(kind, _ string)        { h.hits.WithLabelValues(kind).Inc() }
func (h *Hooks) Miss(kind, _ string)       { h.misses.WithLabelValues(kind).Inc() }
func (h *Hooks) LoadShared(kind, _ string) { h.sharedLoads.WithLabelValues(kind).Inc() }
func (h *Hooks) TierHit(kind, _ string)    { h.tierHits.WithLabelValues(kind).Inc() }

func (h *Hooks) Evicted(kind, _ string, size int64, reason string) {
	h.evictions.WithLabelValues(kind, reason).Inc()
	h.evictBytes.WithLabelValues(kind).Add(float64(size))
}

func (h *Hooks) LoadFailed(kind, _ string, _ error) { h.loadErrors.WithLabelValues(kind).Inc() }

func (h *Hooks) CapacityDerived(kind string, maxEntries int, _ int64) {
	h.maxEntries.WithLabelValues(kind).Set(float64(maxEntries))
}

func (h *Hooks) TierError(kind, _, op string, _ error) {
	h.tierErrors.WithLabelValues(kind, op).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
// update, when non-nil, runs before each scrape to refresh externally held values.
func (h *Hooks) Handler(update func()) http.Handler {
	inner := promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if update != nil {
			update()
		}
		inner.ServeHTTP(w, r)
	})
}
