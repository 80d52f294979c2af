package collective

import (
	"fmt"

	"github.com/arloliu/dkmeans/types"
)

// Op identifies a collective operation kind.
type Op string

const (
	// OpBroadcast copies the root's buffer to every rank.
	OpBroadcast Op = "broadcast"

	// OpAllReduceFloat64 sums float64 buffers element-wise.
	OpAllReduceFloat64 Op = "allreduce_f64"

	// OpAllReduceInt64 sums int64 buffers element-wise.
	OpAllReduceInt64 Op = "allreduce_i64"

	// OpBarrier synchronizes without data.
	OpBarrier Op = "barrier"
)

// header describes one rank's side of a collective call.
type header struct {
	Seq  uint64 `json:"seq"`
	Op   Op     `json:"op"`
	Rank int    `json:"rank"`
	Root int    `json:"root"`
	Len  int    `json:"len"`
}

// matches reports a protocol violation if other is not the same call as h.
func (h header) matches(other header) error {
	if h.Seq != other.Seq || h.Op != other.Op || h.Len != other.Len || h.Root != other.Root {
		return fmt.Errorf("%w: rank %d issued %s#%d(len=%d,root=%d), rank %d issued %s#%d(len=%d,root=%d)",
			types.ErrProtocolViolation,
			h.Rank, h.Op, h.Seq, h.Len, h.Root,
			other.Rank, other.Op, other.Seq, other.Len, other.Root)
	}

	return nil
}

// combineFloat64 combines float64 contributions (indexed by rank) into dst.
func combineFloat64(op Op, root int, contribs [][]float64, dst []float64) {
	if op == OpBroadcast {
		copy(dst, contribs[root])
		return
	}

	copy(dst, contribs[0])
	for r := 1; r < len(contribs); r++ {
		for i, v := range contribs[r] {
			dst[i] += v
		}
	}
}

// combineInt64 combines int64 contributions (indexed by rank) into dst.
func combineInt64(contribs [][]int64, dst []int64) {
	copy(dst, contribs[0])
	for r := 1; r < len(contribs); r++ {
		for i, v := range contribs[r] {
			dst[i] += v
		}
	}
}

func checkRoot(root, size int) error {
	if root < 0 || root >= size {
		return fmt.Errorf("%w: broadcast root %d not in [0,%d)", types.ErrInvalidRank, root, size)
	}

	return nil
}
