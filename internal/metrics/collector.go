package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "switchboard"
	subsystem = "resource"
)

var (
	avgLatencyDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, subsystem, "avg_latency_seconds"),
		"Rolling average latency of the resource",
		[]string{"resource"}, nil,
	)
	avgQualityDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, subsystem, "avg_quality"),
		"Rolling average quality of the resource (0-1)",
		[]string{"resource"}, nil,
	)
	requestsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, subsystem, "requests_total"),
		"Total outcomes recorded for the resource",
		[]string{"resource"}, nil,
	)
	errorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, subsystem, "errors_total"),
		"Total failed outcomes recorded for the resource",
		[]string{"resource"}, nil,
	)
	tokensDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, subsystem, "tokens_total"),
		"Total tokens consumed by the resource",
		[]string{"resource"}, nil,
	)
	costDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, subsystem, "cost_per_unit"),
		"Relative cost weight of the resource",
		[]string{"resource"}, nil,
	)
)

// Describe implements prometheus.Collector.
func (s *Store) Describe(ch chan<- *prometheus.Desc) {
	ch <- avgLatencyDesc
	ch <- avgQualityDesc
	ch <- requestsDesc
	ch <- errorsDesc
	ch <- tokensDesc
	ch <- costDesc
}

// Collect implements prometheus.Collector.
func (s *Store) Collect(ch chan<- prometheus.Metric) {
	for _, st := range s.All() {
		ch <- prometheus.MustNewConstMetric(avgLatencyDesc, prometheus.GaugeValue, st.AvgLatency.Seconds(), st.Name)
		ch <- prometheus.MustNewConstMetric(avgQualityDesc, prometheus.GaugeValue, st.AvgQuality, st.Name)
		ch <- prometheus.MustNewConstMetric(requestsDesc, prometheus.CounterValue, float64(st.Requests), st.Name)
		ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(st.Errors), st.Name)
		ch <- prometheus.MustNewConstMetric(tokensDesc, prometheus.CounterValue, float64(st.Tokens), st.Name)
		ch <- prometheus.MustNewConstMetric(costDesc, prometheus.GaugeValue, st.CostPerUnit, st.Name)
	}
}
