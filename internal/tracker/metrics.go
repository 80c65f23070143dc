package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type trackerMetrics struct {
	activeSessions     prometheus.Gauge
	subscribers        prometheus.Gauge
	broadcasts         prometheus.Counter
	droppedSubscribers prometheus.Counter
	sessions           *prometheus.CounterVec
}

// newTrackerMetrics registers on reg; a nil reg creates unregistered
// collectors.
func newTrackerMetrics(reg prometheus.Registerer) *trackerMetrics {
	f := promauto.With(reg)
	return &trackerMetrics{
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "switchboard",
			Subsystem: "tracker",
			Name:      "active_sessions",
			Help:      "Sessions that have not reached a terminal state",
		}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "switchboard",
			Subsystem: "tracker",
			Name:      "subscribers",
			Help:      "Current update subscribers",
		}),
		broadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "switchboard",
			Subsystem: "tracker",
			Name:      "broadcasts_total",
			Help:      "Updates broadcast to subscribers",
		}),
		droppedSubscribers: f.NewCounter(prometheus.CounterOpts{
			Namespace: "switchboard",
			Subsystem: "tracker",
			Name:      "dropped_subscribers_total",
			Help:      "Subscribers unsubscribed for not accepting an update in time",
		}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchboard",
			Subsystem: "tracker",
			Name:      "sessions_total",
			Help:      "Sessions by terminal outcome",
		}, []string{"outcome"}),
	}
}
