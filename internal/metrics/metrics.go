// Package metrics provides Prometheus instrumentation for the harness.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rba_harness"

var (
	// HTTPRequestsTotal counts inbound HTTP requests by method, route and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status code.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes inbound request latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// UpstreamRequestsTotal counts calls to the RBA/FRM API by operation and outcome.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total upstream API calls by operation and outcome.",
		},
		[]string{"operation", "outcome"}, // outcome: "success", "http_error", "transport_error"
	)

	// UpstreamLatency observes upstream call latency by operation.
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Upstream API call latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// RelayOutcomesTotal counts relayed requests by result.
	RelayOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "outcomes_total",
			Help:      "Relayed requests by result.",
		},
		[]string{"result"}, // "success", "mock", "error"
	)

	// MFAFollowUpsTotal counts MFA status updates by result.
	MFAFollowUpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "mfa_followups_total",
			Help:      "MFA status updates sent after a Require MFA decision, by result.",
		},
		[]string{"result"},
	)

	// BatchPayloads observes dispatched batch sizes by kind.
	BatchPayloads = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "payloads",
			Help:      "Number of payloads per dispatched batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"kind", "fraud"},
	)

	// ExchangeLogSize tracks the current number of buffered exchanges.
	ExchangeLogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exchange_log_entries",
			Help:      "Number of exchanges currently held in memory.",
		},
	)

	// ShipperDropsTotal counts events dropped on backpressure by shipper.
	ShipperDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "dropped_events_total",
			Help:      "Events dropped because a shipper queue was full.",
		},
		[]string{"shipper"},
	)

	// TokenCacheTotal counts JWT cache lookups by result.
	TokenCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token_cache",
			Name:      "lookups_total",
			Help:      "JWT cache lookups by result.",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamRequestsTotal,
		UpstreamLatency,
		RelayOutcomesTotal,
		MFAFollowUpsTotal,
		BatchPayloads,
		ExchangeLogSize,
		ShipperDropsTotal,
		TokenCacheTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
