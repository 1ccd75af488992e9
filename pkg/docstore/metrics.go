package docstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	opsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_docstore_ops_total",
			Help: "Document store operations by op and result",
		},
		[]string{"op", "result"},
	)
	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_docstore_op_duration_seconds",
			Help:    "Document store operation latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"op"},
	)
	subscriptionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_docstore_subscriptions",
			Help: "Live document store subscriptions",
		},
	)
	snapshotsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_docstore_snapshots_published_total",
			Help: "Snapshots pushed to subscriptions",
		},
	)
)

func init() {
	prometheus.MustRegister(opsTotal, opDuration, subscriptionsGauge, snapshotsPublished)
}

// observe records one finished operation; call as defer observe(op, time.Now(), &err).
func observe(op string, started time.Time, err *error) {
	opDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	result := "ok"
	if err != nil && *err != nil {
		result = "error"
	}
	opsTotal.WithLabelValues(op, result).Inc()
}
