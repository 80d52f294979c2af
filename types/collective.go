package types

import "context"

// Communicator provides blocking collective operations over a fixed-size worker group.
//
// Every rank must issue the same sequence of collective calls with the same
// buffer lengths. A rank that skips a call or issues a different operation
// stalls the group (or, where the transport can detect it, fails with
// ErrProtocolViolation). No collective is retried.
//
// Results are delivered identically to every rank: implementations combine
// contributions in ascending rank order on a single rank and distribute the one
// combined buffer, so floating-point sums are bitwise equal everywhere.
type Communicator interface {
	// Rank returns this worker's rank in [0, Size()).
	Rank() int

	// Size returns the number of workers in the group.
	Size() int

	// Broadcast overwrites buf on every rank with the root's buf.
	Broadcast(ctx context.Context, root int, buf []float64) error

	// AllReduceFloat64 replaces buf with the element-wise sum across all ranks.
	AllReduceFloat64(ctx context.Context, buf []float64) error

	// AllReduceInt64 replaces buf with the element-wise sum across all ranks.
	AllReduceInt64(ctx context.Context, buf []int64) error

	// Barrier returns once every rank has entered it.
	Barrier(ctx context.Context) error

	// Close releases transport resources. Collectives after Close fail.
	Close() error
}
