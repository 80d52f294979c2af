package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/dkmeans/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Metrics are registered lazily on first use so that constructing a collector
// never panics on duplicate registration until it is actually exercised.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	stateTransitions *prometheus.CounterVec
	stateDuration    *prometheus.HistogramVec
	workerRank       prometheus.Gauge
	groupSize        prometheus.Gauge
	localPoints      prometheus.Gauge
	iterations       prometheus.Counter
	iterationLatency prometheus.Histogram
	lastIteration    prometheus.Gauge
	runDuration      prometheus.Gauge
	collectiveCalls  *prometheus.HistogramVec
	collectiveErrors *prometheus.CounterVec
	emptyClusters    prometheus.Counter
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "dkmeans" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "dkmeans"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "state_transitions_total",
			Help:      "Total worker state transitions by source and target state.",
		}, []string{"from", "to"})

		p.stateDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "state_duration_seconds",
			Help:      "Time spent in a state before leaving it.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~260s
		}, []string{"state"})

		p.workerRank = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "rank",
			Help:      "Rank of this worker in the group.",
		})
		p.groupSize = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "group_size",
			Help:      "Number of workers in the group.",
		})
		p.localPoints = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "local_points",
			Help:      "Number of points in this worker's partition.",
		})

		p.iterations = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "iterations_total",
			Help:      "Completed assign/reduce/update iterations.",
		})
		p.iterationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "iteration_seconds",
			Help:      "Wall-clock duration of one iteration.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms .. ~4s
		})
		p.lastIteration = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "last_iteration",
			Help:      "Zero-based index of the last completed iteration.",
		})
		p.runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "run_duration_seconds",
			Help:      "Barrier-to-barrier elapsed time of the last run.",
		})

		p.collectiveCalls = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "collective",
			Name:      "call_seconds",
			Help:      "Time spent blocked in collective calls by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2.5, 12), // 0.1ms .. ~24s
		}, []string{"op"})
		p.collectiveErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "collective",
			Name:      "errors_total",
			Help:      "Failed collective calls by operation.",
		}, []string{"op"})

		p.emptyClusters = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "cluster",
			Name:      "empty_total",
			Help:      "Clusters that received no points and kept their previous centroid.",
		})

		p.reg.MustRegister(p.stateTransitions)
		p.reg.MustRegister(p.stateDuration)
		p.reg.MustRegister(p.workerRank)
		p.reg.MustRegister(p.groupSize)
		p.reg.MustRegister(p.localPoints)
		p.reg.MustRegister(p.iterations)
		p.reg.MustRegister(p.iterationLatency)
		p.reg.MustRegister(p.lastIteration)
		p.reg.MustRegister(p.runDuration)
		p.reg.MustRegister(p.collectiveCalls)
		p.reg.MustRegister(p.collectiveErrors)
		p.reg.MustRegister(p.emptyClusters)
	})
}

// RecordStateTransition counts the transition and observes time spent in the source state.
func (p *PrometheusCollector) RecordStateTransition(from, to types.State, duration float64) {
	p.ensureRegistered()
	p.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	p.stateDuration.WithLabelValues(from.String()).Observe(duration)
}

// SetWorkerInfo sets the rank and group size gauges.
func (p *PrometheusCollector) SetWorkerInfo(rank, size int) {
	p.ensureRegistered()
	p.workerRank.Set(float64(rank))
	p.groupSize.Set(float64(size))
}

// RecordIteration observes one iteration's duration.
func (p *PrometheusCollector) RecordIteration(iter int, duration float64) {
	p.ensureRegistered()
	p.iterations.Inc()
	p.iterationLatency.Observe(duration)
	p.lastIteration.Set(float64(iter))
}

// RecordRunDuration sets the run duration gauge.
func (p *PrometheusCollector) RecordRunDuration(duration float64) {
	p.ensureRegistered()
	p.runDuration.Set(duration)
}

// RecordCollective observes a collective call latency.
func (p *PrometheusCollector) RecordCollective(op string, duration float64) {
	p.ensureRegistered()
	p.collectiveCalls.WithLabelValues(op).Observe(duration)
}

// IncrementCollectiveError counts a failed collective call.
func (p *PrometheusCollector) IncrementCollectiveError(op string) {
	p.ensureRegistered()
	p.collectiveErrors.WithLabelValues(op).Inc()
}

// IncrementEmptyCluster counts an empty cluster event.
func (p *PrometheusCollector) IncrementEmptyCluster() {
	p.ensureRegistered()
	p.emptyClusters.Inc()
}

// SetLocalPoints sets the local point count gauge.
func (p *PrometheusCollector) SetLocalPoints(n int) {
	p.ensureRegistered()
	p.localPoints.Set(float64(n))
}

// rankLabel formats a rank for use as a constant label value.
func rankLabel(rank int) string {
	return strconv.Itoa(rank)
}

// NewPrometheusForRank creates a collector whose metrics carry a constant
// "rank" label, so several in-process workers can share one registry.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Metrics namespace (defaults to "dkmeans")
//   - rank: Worker rank stamped on every series
//
// Returns:
//   - *PrometheusCollector: Collector registered through a labeled registerer
func NewPrometheusForRank(reg prometheus.Registerer, namespace string, rank int) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return NewPrometheus(prometheus.WrapRegistererWith(prometheus.Labels{"rank": rankLabel(rank)}, reg), namespace)
}
