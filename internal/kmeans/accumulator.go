package kmeans

import (
	"gonum.org/v1/gonum/mat"
)

// Accumulator holds per-cluster sum vectors and point counts.
//
// After Assign it contains one worker's local statistics; after Reduce it
// contains the global statistics of the whole group.
type Accumulator struct {
	// Sums is a C×d matrix; row k is the sum of points assigned to cluster k.
	Sums *mat.Dense

	// Counts[k] is the number of points assigned to cluster k.
	Counts []int64
}

// NewAccumulator allocates a zeroed accumulator for c clusters of dimension d.
func NewAccumulator(c, d int) *Accumulator {
	return &Accumulator{
		Sums:   mat.NewDense(c, d, nil),
		Counts: make([]int64, c),
	}
}

// Reset zeroes every sum and count.
func (a *Accumulator) Reset() {
	a.Sums.Zero()
	clear(a.Counts)
}

// Clusters returns the number of clusters.
func (a *Accumulator) Clusters() int {
	return len(a.Counts)
}

// Total returns the number of points accumulated across all clusters.
func (a *Accumulator) Total() int64 {
	var n int64
	for _, c := range a.Counts {
		n += c
	}

	return n
}

// Clone returns a deep copy.
func (a *Accumulator) Clone() *Accumulator {
	out := &Accumulator{
		Sums:   mat.DenseCopyOf(a.Sums),
		Counts: make([]int64, len(a.Counts)),
	}
	copy(out.Counts, a.Counts)

	return out
}

// sumsData exposes the contiguous sum buffer for collective transport.
func (a *Accumulator) sumsData() []float64 {
	return a.Sums.RawMatrix().Data
}
