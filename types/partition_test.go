package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartition_LenAndContains(t *testing.T) {
	p := Partition{Rank: 1, Size: 4, Start: 25, End: 50}

	require.Equal(t, 25, p.Len())
	require.True(t, p.Contains(25))
	require.True(t, p.Contains(49))
	require.False(t, p.Contains(50))
	require.False(t, p.Contains(24))
	require.Equal(t, "rank 1/4 [25,50)", p.String())
}

func TestWorkerContext_IsCoordinator(t *testing.T) {
	require.True(t, WorkerContext{Rank: 0, Size: 2, Coordinator: 0}.IsCoordinator())
	require.False(t, WorkerContext{Rank: 1, Size: 2, Coordinator: 0}.IsCoordinator())
	require.True(t, WorkerContext{Rank: 1, Size: 2, Coordinator: 1}.IsCoordinator())
}
