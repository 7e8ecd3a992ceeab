package jobs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the queue's prometheus instruments. Instruments register on
// the default registerer once per process; every queue shares them.
type metrics struct {
	submitted prometheus.Counter
	finished  *prometheus.CounterVec
	running   prometheus.Gauge
	duration  prometheus.Histogram
}

var (
	metricsOnce   sync.Once
	sharedMetrics *metrics
)

func newMetrics() *metrics {
	metricsOnce.Do(func() {
		sharedMetrics = buildMetrics()
	})

	return sharedMetrics
}

func buildMetrics() *metrics {
	return &metrics{
		submitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "reviewd",
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Jobs submitted to the queue.",
		}),
		finished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reviewd",
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Jobs finished, by terminal status.",
		}, []string{"status"}),
		running: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "reviewd",
			Subsystem: "jobs",
			Name:      "running",
			Help:      "Jobs currently executing.",
		}),
		duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reviewd",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Wall-clock job execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}
