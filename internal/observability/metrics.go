package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream provider call rate. Watch for: error vs success ratio.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream provider latency. Watch for: p95 > 2s (upstream degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Gateway requests by resource class and outcome (cacheHit, network, staleServed,
	// synthetic, placeholder). cacheHit/(total) gives the per-class hit rate.
	GatewayRequestsTotal *prometheus.CounterVec

	// Cache partitions dropped on activation due to a version mismatch.
	GatewayPartitionsDroppedTotal *prometheus.CounterVec

	// Store load outcomes: fresh, stale, miss, corrupt.
	StoreLoadsTotal *prometheus.CounterVec

	// Store save outcomes per medium: success, error. Errors are swallowed; the
	// counter is the only place they surface besides logs.
	StoreSavesTotal *prometheus.CounterVec

	// Synthetic data substitutions per component (dashboard, radar, gateway).
	// A nonzero rate means upstream weather data is not reaching the app.
	SyntheticFallbacksTotal *prometheus.CounterVec

	// Loading-timeout guard firings. Watch for: slow or broken network paths.
	LoadTimeoutsTotal prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream weather provider calls",
		},
		[]string{"provider", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "status"},
	)
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayRequestsTotal",
			Help: "Gateway requests by resource class and response outcome",
		},
		[]string{"class", "outcome"},
	)
	GatewayPartitionsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewayPartitionsDroppedTotal",
			Help: "Cache partitions deleted on activation due to version mismatch",
		},
		[]string{"partition"},
	)
	StoreLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeLoadsTotal",
			Help: "Persisted snapshot load outcomes (fresh, stale, miss, corrupt)",
		},
		[]string{"result"},
	)
	StoreSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeSavesTotal",
			Help: "Persisted snapshot save outcomes per storage medium",
		},
		[]string{"medium", "result"},
	)
	SyntheticFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syntheticFallbacksTotal",
			Help: "Synthetic data substitutions per component",
		},
		[]string{"component"},
	)
	LoadTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loadTimeoutsTotal",
			Help: "Loading-timeout guard firings forcing the synthetic path",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration,
		GatewayRequestsTotal, GatewayPartitionsDroppedTotal,
		StoreLoadsTotal, StoreSavesTotal,
		SyntheticFallbacksTotal, LoadTimeoutsTotal,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns the HTTP handler serving the private registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StatusLabel buckets an HTTP status code into a stable metric label.
func StatusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == 429:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}
