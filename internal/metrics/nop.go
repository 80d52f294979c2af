// Package metrics provides types.MetricsCollector implementations.
package metrics

import "github.com/arloliu/dkmeans/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	runner, _ := dkmeans.NewRunner(&cfg, comm, src, dkmeans.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// RunnerMetrics implementation

// RecordStateTransition discards the state transition metric.
func (n *NopMetrics) RecordStateTransition(_ /* from */, _ /* to */ types.State, _ /* duration */ float64) {
}

// SetWorkerInfo discards the worker identity metric.
func (n *NopMetrics) SetWorkerInfo(_ /* rank */, _ /* size */ int) {}

// RecordIteration discards the iteration duration metric.
func (n *NopMetrics) RecordIteration(_ /* iter */ int, _ /* duration */ float64) {}

// RecordRunDuration discards the run duration metric.
func (n *NopMetrics) RecordRunDuration(_ /* duration */ float64) {}

// CollectiveMetrics implementation

// RecordCollective discards the collective latency metric.
func (n *NopMetrics) RecordCollective(_ /* op */ string, _ /* duration */ float64) {}

// IncrementCollectiveError discards the collective error metric.
func (n *NopMetrics) IncrementCollectiveError(_ /* op */ string) {}

// ClusterMetrics implementation

// IncrementEmptyCluster discards the empty cluster metric.
func (n *NopMetrics) IncrementEmptyCluster() {}

// SetLocalPoints discards the local point count metric.
func (n *NopMetrics) SetLocalPoints(_ /* n */ int) {}
