package blobstore

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_blob_uploads_total",
			Help: "Blob uploads by result",
		},
		[]string{"result"},
	)
	uploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_blob_upload_bytes_total",
			Help: "Bytes committed to the blob store",
		},
	)
	uploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatsync_blob_upload_duration_seconds",
			Help:    "Blob upload latency",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(uploadsTotal, uploadBytes, uploadDuration)
}

func observePut(started time.Time, n int64, err error) {
	uploadDuration.Observe(time.Since(started).Seconds())
	switch {
	case err == nil:
		uploadsTotal.WithLabelValues("ok").Inc()
		uploadBytes.Add(float64(n))
	case errors.Is(err, ErrTooLarge):
		uploadsTotal.WithLabelValues("too_large").Inc()
	case errors.Is(err, ErrDiskFull):
		uploadsTotal.WithLabelValues("disk_full").Inc()
	default:
		uploadsTotal.WithLabelValues("error").Inc()
	}
}
