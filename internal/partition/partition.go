// Package partition splits a global point count evenly across a fixed worker group.
package partition

import (
	"fmt"

	"github.com/arloliu/dkmeans/types"
)

// New computes the partition owned by rank in a group of size workers.
//
// The algorithm:
//  1. Require n > 0, size > 0, rank in [0, size) and n mod size == 0
//  2. Local size pN = n / size
//  3. Range [rank*pN, (rank+1)*pN)
//
// Parameters:
//   - n: Global point count
//   - size: Worker count
//   - rank: This worker's rank
//
// Returns:
//   - types.Partition: The contiguous index range owned by rank
//   - error: ErrConfiguration when n is not evenly divisible, ErrInvalidRank for a bad rank
//
// Example:
//
//	p, err := partition.New(100, 4, 1) // rank 1/4 [25,50)
func New(n, size, rank int) (types.Partition, error) {
	if err := Validate(n, size); err != nil {
		return types.Partition{}, err
	}
	if rank < 0 || rank >= size {
		return types.Partition{}, fmt.Errorf("%w: rank %d not in [0,%d)", types.ErrInvalidRank, rank, size)
	}

	pN := n / size

	return types.Partition{
		Rank:  rank,
		Size:  size,
		Start: rank * pN,
		End:   (rank + 1) * pN,
	}, nil
}

// Validate checks that n points can be split evenly across size workers.
//
// It is called before any data is read so that a bad group size aborts every
// worker up front instead of silently dropping the remainder rows.
func Validate(n, size int) error {
	if n <= 0 {
		return fmt.Errorf("%w: point count must be positive, got %d", types.ErrConfiguration, n)
	}
	if size <= 0 {
		return fmt.Errorf("%w: worker count must be positive, got %d", types.ErrConfiguration, size)
	}
	if n%size != 0 {
		return fmt.Errorf("%w: point count %d is not divisible by worker count %d", types.ErrConfiguration, n, size)
	}

	return nil
}

// All returns the partitions of every rank in rank order.
func All(n, size int) ([]types.Partition, error) {
	if err := Validate(n, size); err != nil {
		return nil, err
	}

	parts := make([]types.Partition, size)
	for r := range size {
		p, err := New(n, size, r)
		if err != nil {
			return nil, err
		}
		parts[r] = p
	}

	return parts, nil
}
