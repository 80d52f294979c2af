package kmeans

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/arloliu/dkmeans/collective"
	"github.com/arloliu/dkmeans/types"
)

// onEachRank runs fn concurrently for every rank of a local group and fails the test on any error.
func onEachRank(t *testing.T, size int, fn func(ctx context.Context, comm types.Communicator) error) {
	t.Helper()

	group, err := collective.NewLocalGroup(size)
	require.NoError(t, err)
	defer group.Close()

	g, ctx := errgroup.WithContext(context.Background())
	for r := range size {
		g.Go(func() error { return fn(ctx, group.Comm(r)) })
	}
	require.NoError(t, g.Wait())
}
