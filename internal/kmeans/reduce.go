package kmeans

import (
	"context"
	"fmt"

	"github.com/arloliu/dkmeans/types"
)

// Reducer combines every worker's local accumulator into the global one.
type Reducer struct {
	comm types.Communicator
}

// NewReducer creates a reducer over the given communicator.
func NewReducer(comm types.Communicator) *Reducer {
	return &Reducer{comm: comm}
}

// Reduce replaces acc's local sums and counts with the element-wise sums over
// all workers. Every worker must call Reduce exactly once per iteration, after
// Assign and before Update.
//
// Parameters:
//   - ctx: Context for cancellation
//   - acc: Local accumulator, overwritten with the global result
//
// Returns:
//   - error: Collective failure (fatal for the whole group)
func (r *Reducer) Reduce(ctx context.Context, acc *Accumulator) error {
	if err := r.comm.AllReduceFloat64(ctx, acc.sumsData()); err != nil {
		return fmt.Errorf("reduce cluster sums: %w", err)
	}
	if err := r.comm.AllReduceInt64(ctx, acc.Counts); err != nil {
		return fmt.Errorf("reduce cluster counts: %w", err)
	}

	return nil
}
