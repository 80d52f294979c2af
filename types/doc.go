// Package types provides core type definitions and interfaces for the dkmeans library.
//
// This package contains shared types that are used across multiple packages in the
// dkmeans library. By keeping these types in a separate package, we avoid import cycles
// between the main dkmeans package and its internal implementations.
//
// Key types:
//   - State: Worker lifecycle state
//   - Partition: Contiguous slice of global row indices owned by one worker
//   - WorkerContext: Rank, group size and partition bounds passed to every component
//   - Communicator: Blocking collective operations (broadcast, all-reduce, barrier)
//   - PointSource: Row-oriented access to the global point set
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
package types
