package partition

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/dkmeans/types"
)

func TestNew(t *testing.T) {
	p, err := New(100, 4, 1)
	require.NoError(t, err)
	require.Equal(t, types.Partition{Rank: 1, Size: 4, Start: 25, End: 50}, p)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		n, p, r int
		wantErr error
	}{
		{"not divisible", 10, 3, 0, types.ErrConfiguration},
		{"zero points", 0, 1, 0, types.ErrConfiguration},
		{"zero workers", 10, 0, 0, types.ErrConfiguration},
		{"negative rank", 10, 2, -1, types.ErrInvalidRank},
		{"rank too large", 10, 2, 2, types.ErrInvalidRank},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.n, tt.p, tt.r)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAll_CoversRangeDisjointly(t *testing.T) {
	for _, tc := range []struct{ n, p int }{{1, 1}, {12, 1}, {12, 2}, {12, 3}, {12, 4}, {12, 6}, {12, 12}, {1000, 8}} {
		parts, err := All(tc.n, tc.p)
		require.NoError(t, err)
		require.Len(t, parts, tc.p)

		next, total := 0, 0
		for r, part := range parts {
			require.Equal(t, r, part.Rank)
			require.Equal(t, tc.p, part.Size)
			require.Equal(t, next, part.Start, "partitions must be contiguous")
			require.Equal(t, tc.n/tc.p, part.Len())
			next = part.End
			total += part.Len()
		}
		require.Equal(t, tc.n, next)
		require.Equal(t, tc.n, total)
	}
}

func TestAll_RejectsUneven(t *testing.T) {
	_, err := All(7, 2)
	require.ErrorIs(t, err, types.ErrConfiguration)
}
