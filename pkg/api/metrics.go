package api

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	authFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_http_auth_failures_total",
			Help: "Requests rejected for a missing or bad token",
		},
	)
	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
	apiSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_api_pooled_sessions",
			Help: "Chat sessions pooled by the API",
		},
	)
	sseStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_sse_streams",
			Help: "Open event streams",
		},
	)
	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chatsync_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, authFailures, rateLimited, apiSessions, sseStreams, heapAlloc)
}
