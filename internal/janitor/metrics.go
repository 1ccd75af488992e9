package janitor

import "github.com/prometheus/client_golang/prometheus"

var (
	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_janitor_runs_total",
			Help: "Janitor runs by result",
		},
		[]string{"result"},
	)
	purged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_janitor_purged_total",
			Help: "Abandoned staged uploads removed",
		},
	)
)

func init() {
	prometheus.MustRegister(runs, purged)
}
