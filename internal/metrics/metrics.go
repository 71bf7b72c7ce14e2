package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache tiers as reported by CacheLookups
const (
	TierMemory = "memory"
	TierKV     = "kv"
)

// Results as reported by CacheLookups and KVOperations
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
	ResultOK    = "ok"
	ResultSkip  = "skip"
)

// Registry holds every collector exposed on /metrics
type Registry struct {
	reg *prometheus.Registry

	CacheLookups     *prometheus.CounterVec
	KVOperations     *prometheus.CounterVec
	KVLatency        *prometheus.HistogramVec
	ScrapePages      *prometheus.CounterVec
	ScrapeCandidates prometheus.Counter
	PlaylistReloads  *prometheus.CounterVec
	PlaylistChannels prometheus.Gauge
	CleanupDeleted   *prometheus.CounterVec
}

// New builds a registry with process and Go runtime collectors attached
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetv",
			Name:      "cache_lookups_total",
			Help:      "Resolver cache lookups by resolver, tier and result.",
		}, []string{"resolver", "tier", "result"}),
		KVOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetv",
			Name:      "kv_operations_total",
			Help:      "Key/value store operations by operation and result.",
		}, []string{"op", "result"}),
		KVLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "livetv",
			Name:      "kv_operation_seconds",
			Help:      "Key/value store call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		ScrapePages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetv",
			Name:      "scrape_pages_total",
			Help:      "Scraped pages by outcome (matched, fallback, failed).",
		}, []string{"outcome"}),
		ScrapeCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livetv",
			Name:      "scrape_candidates_total",
			Help:      "Stream candidates discovered by scraping.",
		}),
		PlaylistReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetv",
			Name:      "playlist_reloads_total",
			Help:      "Playlist loads by result (changed, unchanged, failed).",
		}, []string{"result"}),
		PlaylistChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livetv",
			Name:      "playlist_channels",
			Help:      "Logical channels in the current table.",
		}),
		CleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livetv",
			Name:      "cleanup_deleted_total",
			Help:      "Keys removed by the cleanup sweep, by path (bulk, fallback, failed).",
		}, []string{"path"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.CacheLookups,
		r.KVOperations,
		r.KVLatency,
		r.ScrapePages,
		r.ScrapeCandidates,
		r.PlaylistReloads,
		r.PlaylistChannels,
		r.CleanupDeleted,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Lookup records one cache lookup. All recorders are no-ops on a nil registry.
func (r *Registry) Lookup(resolver, tier, result string) {
	if r == nil {
		return
	}
	r.CacheLookups.WithLabelValues(resolver, tier, result).Inc()
}

// KVOp records one KV call
func (r *Registry) KVOp(op, result string, seconds float64) {
	if r == nil {
		return
	}
	r.KVOperations.WithLabelValues(op, result).Inc()
	r.KVLatency.WithLabelValues(op).Observe(seconds)
}

// ScrapePage records one scraped page and how many candidates it yielded
func (r *Registry) ScrapePage(outcome string, candidates int) {
	if r == nil {
		return
	}
	r.ScrapePages.WithLabelValues(outcome).Inc()
	r.ScrapeCandidates.Add(float64(candidates))
}

// PlaylistLoad records a playlist load and the resulting table size
func (r *Registry) PlaylistLoad(result string, channels int) {
	if r == nil {
		return
	}
	r.PlaylistReloads.WithLabelValues(result).Inc()
	if result != "failed" {
		r.PlaylistChannels.Set(float64(channels))
	}
}

// Cleanup records sweep deletions per path
func (r *Registry) Cleanup(bulk, fallback, failed int) {
	if r == nil {
		return
	}
	r.CleanupDeleted.WithLabelValues("bulk").Add(float64(bulk))
	r.CleanupDeleted.WithLabelValues("fallback").Add(float64(fallback))
	r.CleanupDeleted.WithLabelValues("failed").Add(float64(failed))
}
