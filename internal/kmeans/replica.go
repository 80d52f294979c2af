package kmeans

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zeebo/xxh3"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/dkmeans/types"
)

// Fingerprint returns an xxh3 hash of the exact bit patterns of m's values.
//
// Two matrices have the same fingerprint only if they are bitwise identical
// (barring hash collisions), which is stricter than numeric equality: +0 and -0
// hash differently.
func Fingerprint(m *mat.Dense) uint64 {
	r, c := m.Dims()
	buf := make([]byte, 0, r*c*8)
	for i := range r {
		for _, v := range m.RawRowView(i) {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}

	return xxh3.Hash(buf)
}

// VerifyReplicas checks that every worker holds the same centroid matrix.
//
// Each worker writes its fingerprint into slot Rank of a Size-long vector and
// the vector is sum-reduced. Since every other slot is zero, the reduction acts
// as an all-gather of fingerprints. All slots must then be equal.
//
// Returns:
//   - error: ErrDivergentReplicas naming the first differing rank, or a collective failure
func VerifyReplicas(ctx context.Context, comm types.Communicator, centroids *mat.Dense) error {
	prints := make([]int64, comm.Size())
	prints[comm.Rank()] = int64(Fingerprint(centroids)) //nolint:gosec // bit pattern transport, not arithmetic

	if err := comm.AllReduceInt64(ctx, prints); err != nil {
		return fmt.Errorf("gather centroid fingerprints: %w", err)
	}

	for r, fp := range prints {
		if fp != prints[0] {
			return fmt.Errorf("%w: rank %d fingerprint %x differs from rank 0 fingerprint %x",
				types.ErrDivergentReplicas, r, uint64(fp), uint64(prints[0])) //nolint:gosec // display only
		}
	}

	return nil
}
