package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type driverMetrics struct {
	queries      *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	participants prometheus.Histogram
}

func newDriverMetrics(reg prometheus.Registerer) *driverMetrics {
	f := promauto.With(reg)
	return &driverMetrics{
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchboard",
			Subsystem: "orchestrator",
			Name:      "queries_total",
			Help:      "Queries by status and error kind",
		}, []string{"status", "kind"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "switchboard",
			Subsystem: "orchestrator",
			Name:      "query_duration_seconds",
			Help:      "Wall time of SelectAndRun",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"status"}),
		participants: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "switchboard",
			Subsystem: "orchestrator",
			Name:      "participants",
			Help:      "Specialists per query",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),
	}
}

func (m *driverMetrics) observe(res *Result, participants int) {
	m.queries.WithLabelValues(string(res.Status), string(res.ErrorKind)).Inc()
	m.duration.WithLabelValues(string(res.Status)).Observe(res.Duration.Seconds())
	m.participants.Observe(float64(participants))
}
