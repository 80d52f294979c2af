package kmeans

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/dkmeans/collective"
	"github.com/arloliu/dkmeans/types"
)

func TestFingerprint(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	c := mat.NewDense(2, 2, []float64{1, 2, 3, math.Nextafter(4, 5)})

	require.Equal(t, Fingerprint(a), Fingerprint(b))
	require.NotEqual(t, Fingerprint(a), Fingerprint(c))

	pos := mat.NewDense(1, 1, []float64{0})
	neg := mat.NewDense(1, 1, []float64{math.Copysign(0, -1)})
	require.NotEqual(t, Fingerprint(pos), Fingerprint(neg))
}

func TestVerifyReplicas_Identical(t *testing.T) {
	onEachRank(t, 4, func(ctx context.Context, comm types.Communicator) error {
		return VerifyReplicas(ctx, comm, mat.NewDense(2, 1, []float64{1.5, 3.5}))
	})
}

func TestVerifyReplicas_Divergent(t *testing.T) {
	const size = 3
	group, err := collective.NewLocalGroup(size)
	require.NoError(t, err)
	defer group.Close()

	errs := make(chan error, size)
	for r := range size {
		go func() {
			v := 1.0
			if r == 2 {
				v = 1.0000001
			}
			errs <- VerifyReplicas(context.Background(), group.Comm(r), mat.NewDense(1, 1, []float64{v}))
		}()
	}

	for range size {
		err := <-errs
		require.True(t, errors.Is(err, types.ErrDivergentReplicas), "got %v", err)
	}
}
