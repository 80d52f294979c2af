package source

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/dkmeans/types"
)

// Static implements a point source over rows held in memory.
type Static struct {
	rows *mat.Dense
}

var _ types.PointSource = (*Static)(nil)

// NewStatic creates a new static point source.
//
// The matrix is not copied; callers must not modify it while the source is in use.
// Useful for testing and for library callers that already hold their data.
//
// Parameters:
//   - rows: N×d point matrix
//
// Returns:
//   - *Static: Initialized static source
//
// Example:
//
//	pts := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
//	src := source.NewStatic(pts)
//	res, err := dkmeans.RunLocal(ctx, &cfg, src)
func NewStatic(rows *mat.Dense) *Static {
	return &Static{rows: rows}
}

// FromRows builds a static source from a slice of equal-length rows.
//
// Returns:
//   - *Static: Source holding a copy of rows
//   - error: ErrConfiguration if rows is empty or ragged
func FromRows(rows [][]float64) (*Static, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: static source needs at least one non-empty row", types.ErrConfiguration)
	}

	d := len(rows[0])
	m := mat.NewDense(len(rows), d, nil)
	for i, row := range rows {
		if len(row) != d {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", types.ErrConfiguration, i, len(row), d)
		}
		m.SetRow(i, row)
	}

	return NewStatic(m), nil
}

// Dims returns the number of rows and the dimension.
func (s *Static) Dims() (int, int) {
	return s.rows.Dims()
}

// ReadRange returns a copy of rows [start, end).
func (s *Static) ReadRange(_ context.Context, start, end int) (*mat.Dense, error) {
	n, d := s.rows.Dims()
	if err := checkRange(start, end, n); err != nil {
		return nil, err
	}

	return mat.DenseCopyOf(s.rows.Slice(start, end, 0, d)), nil
}

// ReadRows returns a copy of the rows at ascending indices.
func (s *Static) ReadRows(_ context.Context, indices []int) (*mat.Dense, error) {
	n, d := s.rows.Dims()
	if err := checkIndices(indices, n); err != nil {
		return nil, err
	}

	out := mat.NewDense(len(indices), d, nil)
	for i, idx := range indices {
		copy(out.RawRowView(i), s.rows.RawRowView(idx))
	}

	return out, nil
}
