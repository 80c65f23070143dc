// Package metrics keeps bounded rolling windows of performance samples for
// each selectable resource.
//
// Each resource window has its own mutex; lifetime request, error and token
// counters are atomic. Averages come from running sums, so reading them is
// O(1). The Store also implements prometheus.Collector.
package metrics
