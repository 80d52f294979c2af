// Package collective provides types.Communicator implementations.
//
// Two transports are available:
//   - LocalGroup: P in-process workers (goroutines) exchanging buffers over channels
//   - NATSComm: P processes exchanging buffers over core NATS subjects
//
// Both follow the same gather-combine-distribute scheme. Every rank sends its
// contribution to rank 0. Rank 0 validates that all ranks issued the same
// operation at the same sequence number with the same buffer length, combines
// the buffers in ascending rank order, and sends the single result back to
// everyone. Because the combination happens once, in a fixed order, the result
// is bitwise identical on every rank.
//
// Broadcast, all-reduce and barrier are all expressed this way:
//
//	Broadcast:   result = contribution[root]
//	AllReduce:   result = contribution[0] + contribution[1] + ... + contribution[P-1]
//	Barrier:     zero-length all-reduce
//
// WithMetrics wraps any Communicator to record per-operation latency.
package collective
