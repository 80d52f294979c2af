package types

import "fmt"

// Partition is the contiguous range of global row indices owned by one worker.
//
// The range is half-open: [Start, End). Partitions are computed once at startup
// and never resized.
type Partition struct {
	// Rank is the owning worker's rank in [0, Size).
	Rank int `json:"rank"`

	// Size is the number of workers in the group.
	Size int `json:"size"`

	// Start is the first global row index (inclusive).
	Start int `json:"start"`

	// End is one past the last global row index (exclusive).
	End int `json:"end"`
}

// Len returns the number of rows in the partition.
func (p Partition) Len() int {
	return p.End - p.Start
}

// Contains reports whether the global row index i falls inside the partition.
func (p Partition) Contains(i int) bool {
	return i >= p.Start && i < p.End
}

// String returns a compact human-readable form, e.g. "rank 1/4 [25,50)".
func (p Partition) String() string {
	return fmt.Sprintf("rank %d/%d [%d,%d)", p.Rank, p.Size, p.Start, p.End)
}

// WorkerContext carries the identity and data bounds of one worker.
//
// It is constructed once by the runner and passed explicitly to every component
// that needs to know who it is. Nothing reads rank or group size from package state.
type WorkerContext struct {
	// Rank is this worker's rank in [0, Size).
	Rank int

	// Size is the fixed number of workers in the group.
	Size int

	// Coordinator is the rank that seeds centroids and reports results.
	Coordinator int

	// Partition is the worker's slice of the global point set.
	Partition Partition
}

// IsCoordinator reports whether this worker is the designated coordinator.
func (w WorkerContext) IsCoordinator() bool {
	return w.Rank == w.Coordinator
}
