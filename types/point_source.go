package types

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// PointSource provides row access to the global point set.
//
// Rows are d-dimensional float64 vectors addressed by their global index in [0, N).
// Implementations must be safe for independent use by different workers: each
// worker reads only its own range, so there is no shared mutable state.
type PointSource interface {
	// ReadRange returns rows [start, end) as an (end-start)×d matrix.
	//
	// When end equals the total point count, implementations verify that the
	// source holds no further rows. A short, long, or malformed source fails
	// with ErrIO.
	ReadRange(ctx context.Context, start, end int) (*mat.Dense, error)

	// ReadRows returns the rows at the given ascending, distinct indices in one
	// sequential pass, as a len(indices)×d matrix in index order.
	ReadRows(ctx context.Context, indices []int) (*mat.Dense, error)
}
