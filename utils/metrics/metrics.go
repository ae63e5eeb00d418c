// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RedirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shortly",
		Name:      "redirects_total",
		Help:      "Redirect outcomes by status.",
	}, []string{"status"})

	RedirectLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shortly",
		Name:      "redirect_latency_seconds",
		Help:      "End-to-end redirect resolution latency.",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shortly",
		Name:      "cache_lookups_total",
		Help:      "Multi-layer cache lookups by resolving layer.",
	}, []string{"source"})

	TombstoneHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shortly",
		Name:      "cache_tombstone_hits_total",
		Help:      "Negative-cache hits by tombstone kind.",
	}, []string{"kind"})

	URLsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shortly",
		Name:      "urls_created_total",
		Help:      "Short URLs created, by id generation method.",
	}, []string{"method"})

	AnalyticsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shortly",
		Name:      "analytics_events_published_total",
		Help:      "Click events handed to the analytics pipeline, by path.",
	}, []string{"path"})

	AnalyticsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shortly",
		Name:      "analytics_events_persisted_total",
		Help:      "Click events durably written to the analytics store.",
	})

	AnalyticsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shortly",
		Name:      "analytics_events_dropped_total",
		Help:      "Click events dropped after buffer exhaustion.",
	})

	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shortly",
		Name:      "ratelimit_decisions_total",
		Help:      "Admission decisions by tier and outcome.",
	}, []string{"tier", "outcome"})

	WSSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shortly",
		Name:      "ws_subscribers",
		Help:      "Live WebSocket subscribers across all short codes.",
	})

	WSEmits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shortly",
		Name:      "ws_emits_total",
		Help:      "Click events fanned out to WebSocket subscribers.",
	})

	AllocatorRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shortly",
		Name:      "id_allocator_remaining",
		Help:      "Unused ids left in the allocator's reserved range.",
	})

	ExpiredSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shortly",
		Name:      "expired_mappings_swept_total",
		Help:      "Mappings retired by the expiry sweeper.",
	})
)
