package kmeans

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/dkmeans/types"
)

// SampleIndices draws c distinct indices from [0, n) and returns them ascending.
//
// It runs the first c steps of a Fisher-Yates shuffle over a virtual identity
// permutation. Swapped positions are kept in a map, so memory is O(c) rather
// than O(n). Every index is drawn at most once.
//
// Parameters:
//   - rng: Random source (deterministic for a fixed seed)
//   - n: Population size
//   - c: Sample size, 1 <= c <= n
//
// Returns:
//   - []int: c distinct ascending indices
//   - error: ErrConfiguration when c is out of range
func SampleIndices(rng *rand.Rand, n, c int) ([]int, error) {
	if c <= 0 || c > n {
		return nil, fmt.Errorf("%w: cannot draw %d distinct indices from %d points", types.ErrConfiguration, c, n)
	}

	swapped := make(map[int]int, c)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}

		return i
	}

	out := make([]int, c)
	for i := range c {
		j := i + rng.IntN(n-i)
		vi, vj := at(i), at(j)
		swapped[j] = vi
		out[i] = vj
	}

	slices.Sort(out)

	return out, nil
}

// Seeder produces the initial centroid matrix on the coordinator and
// distributes it to every worker.
type Seeder struct {
	comm   types.Communicator
	src    types.PointSource
	rng    *rand.Rand
	logger types.Logger
}

// NewSeeder creates a seeder.
//
// Parameters:
//   - comm: Communicator used for the broadcast
//   - src: Global point source (only read on the coordinator)
//   - seed: PRNG seed; the same seed always picks the same rows
//   - logger: Logger for the chosen row indices
//
// Returns:
//   - *Seeder: Ready-to-use seeder
func NewSeeder(comm types.Communicator, src types.PointSource, seed uint64, logger types.Logger) *Seeder {
	return &Seeder{
		comm:   comm,
		src:    src,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // sampling, not crypto
		logger: logger,
	}
}

// Sample picks c distinct rows of the n-row source and returns them as a c×d matrix.
//
// The rows are read in one sequential pass in increasing index order, and the
// matrix rows follow that order. Only the coordinator calls Sample.
func (s *Seeder) Sample(ctx context.Context, n, c int) (*mat.Dense, error) {
	idx, err := SampleIndices(s.rng, n, c)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("initial centroid rows selected", "indices", idx)

	centroids, err := s.src.ReadRows(ctx, idx)
	if err != nil {
		return nil, fmt.Errorf("read seed rows: %w", err)
	}

	return centroids, nil
}

// Distribute broadcasts centroids from the coordinator to every worker.
//
// Every worker must call Distribute exactly once, before the first iteration.
// On non-coordinator ranks centroids is an allocated C×d matrix whose contents
// are overwritten.
func (s *Seeder) Distribute(ctx context.Context, wc types.WorkerContext, centroids *mat.Dense) error {
	if err := s.comm.Broadcast(ctx, wc.Coordinator, centroids.RawMatrix().Data); err != nil {
		return fmt.Errorf("broadcast initial centroids: %w", err)
	}

	return nil
}
