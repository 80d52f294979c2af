package dkmeans

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/dkmeans/source"
)

// seededSource serves points from memory and answers every seed read with fixed centroids.
type seededSource struct {
	*source.Static
	seeds *mat.Dense
}

func (s *seededSource) ReadRows(_ context.Context, _ []int) (*mat.Dense, error) {
	return mat.DenseCopyOf(s.seeds), nil
}

func newSeededSource(t *testing.T, points, seeds [][]float64) *seededSource {
	t.Helper()

	pts, err := source.FromRows(points)
	require.NoError(t, err)

	m := mat.NewDense(len(seeds), len(seeds[0]), nil)
	for i, row := range seeds {
		m.SetRow(i, row)
	}

	return &seededSource{Static: pts, seeds: m}
}

// failingSource fails ReadRange for the partition starting at failStart.
type failingSource struct {
	*source.Static
	failStart int
	reads     atomic.Int32
}

func (s *failingSource) ReadRange(ctx context.Context, start, end int) (*mat.Dense, error) {
	s.reads.Add(1)
	if start == s.failStart {
		return nil, fmt.Errorf("%w: simulated truncated file at row %d", ErrIO, start)
	}

	return s.Static.ReadRange(ctx, start, end)
}

// integerPoints returns n rows of d small integers. Integer sums are exact in
// float64, so results do not depend on summation order.
func integerPoints(n, d int, seed uint64) [][]float64 {
	rng := rand.New(rand.NewPCG(seed, seed)) //nolint:gosec // test data
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, d)
		for j := range rows[i] {
			rows[i][j] = float64(rng.IntN(201) - 100)
		}
	}

	return rows
}

func column(rows ...float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, v := range rows {
		out[i] = []float64{v}
	}

	return out
}

func localConfig(d, n, c, iters, workers int) Config {
	cfg := TestConfig()
	cfg.Dimension = d
	cfg.Points = n
	cfg.Clusters = c
	cfg.Iterations = iters
	cfg.Workers = workers

	return cfg
}
