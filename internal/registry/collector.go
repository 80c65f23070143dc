package registry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	entriesDesc = prometheus.NewDesc(
		"switchboard_registry_entries",
		"Specialists in the current snapshot",
		nil, nil,
	)
	ageDesc = prometheus.NewDesc(
		"switchboard_registry_snapshot_age_seconds",
		"Age of the current snapshot",
		nil, nil,
	)
	hitsDesc = prometheus.NewDesc(
		"switchboard_registry_hits_total",
		"Lookups served from the snapshot",
		nil, nil,
	)
	missesDesc = prometheus.NewDesc(
		"switchboard_registry_misses_total",
		"Lookups for ids absent from the snapshot",
		nil, nil,
	)
	refreshFailuresDesc = prometheus.NewDesc(
		"switchboard_registry_refresh_failures_total",
		"Refresh and hot reload attempts that failed",
		nil, nil,
	)
	promptsDesc = prometheus.NewDesc(
		"switchboard_registry_prompt_cache_entries",
		"Compiled prompts held in the LRU",
		nil, nil,
	)
)

// Describe implements prometheus.Collector.
func (c *Cache) Describe(ch chan<- *prometheus.Desc) {
	ch <- entriesDesc
	ch <- ageDesc
	ch <- hitsDesc
	ch <- missesDesc
	ch <- refreshFailuresDesc
	ch <- promptsDesc
}

// Collect implements prometheus.Collector.
func (c *Cache) Collect(ch chan<- prometheus.Metric) {
	st := c.Stats()
	ch <- prometheus.MustNewConstMetric(entriesDesc, prometheus.GaugeValue, float64(st.Entries))
	ch <- prometheus.MustNewConstMetric(ageDesc, prometheus.GaugeValue, st.AgeSeconds)
	ch <- prometheus.MustNewConstMetric(hitsDesc, prometheus.CounterValue, float64(st.Hits))
	ch <- prometheus.MustNewConstMetric(missesDesc, prometheus.CounterValue, float64(st.Misses))
	ch <- prometheus.MustNewConstMetric(refreshFailuresDesc, prometheus.CounterValue, float64(st.RefreshFailures))
	ch <- prometheus.MustNewConstMetric(promptsDesc, prometheus.GaugeValue, float64(st.PromptCacheSize))
}
