package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	RunnerMetrics
	CollectiveMetrics
	ClusterMetrics
}

// RunnerMetrics defines metrics for the iteration controller.
type RunnerMetrics interface {
	// RecordStateTransition records a worker state transition event.
	RecordStateTransition(from, to State, duration float64)

	// SetWorkerInfo records the worker's rank and group size.
	SetWorkerInfo(rank, size int)

	// RecordIteration records the wall-clock duration of one assign/reduce/update round.
	RecordIteration(iter int, duration float64)

	// RecordRunDuration records the barrier-to-barrier elapsed time of a run.
	RecordRunDuration(duration float64)
}

// CollectiveMetrics defines metrics for collective operations.
type CollectiveMetrics interface {
	// RecordCollective records the duration of one collective call.
	//
	// Parameters:
	//   - op: Operation name ("broadcast", "allreduce_f64", "allreduce_i64", "barrier")
	//   - duration: Time spent blocked in the call, in seconds
	RecordCollective(op string, duration float64)

	// IncrementCollectiveError counts failed collective calls by operation.
	IncrementCollectiveError(op string)
}

// ClusterMetrics defines metrics describing the clustering itself.
type ClusterMetrics interface {
	// IncrementEmptyCluster counts clusters that received no points in an iteration
	// and therefore kept their previous centroid.
	IncrementEmptyCluster()

	// SetLocalPoints records the number of points owned by this worker.
	SetLocalPoints(n int)
}
