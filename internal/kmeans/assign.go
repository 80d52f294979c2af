package kmeans

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Assigner assigns local points to their nearest centroid.
//
// It owns a scratch buffer for distance computation, so one Assigner must not
// be shared between goroutines. Each worker creates its own.
type Assigner struct {
	scratch []float64
}

// NewAssigner creates an assigner for d-dimensional points.
func NewAssigner(d int) *Assigner {
	return &Assigner{scratch: make([]float64, d)}
}

// Assign accumulates every row of points into the cluster of its nearest centroid.
//
// The accumulator is reset first, so the result depends only on (points, centroids).
// Distance is the Euclidean norm of the coordinate-wise difference. The comparison
// is strict, so on a tie the lowest-indexed centroid wins.
//
// Parameters:
//   - points: n×d local points
//   - centroids: C×d current centroids
//   - acc: Accumulator sized C×d, overwritten with the local sums and counts
//
// Returns:
//   - error: Dimension mismatch between points, centroids and accumulator
func (a *Assigner) Assign(points, centroids *mat.Dense, acc *Accumulator) error {
	n, d := points.Dims()
	c, cd := centroids.Dims()
	ac, ad := acc.Sums.Dims()
	if cd != d || ad != d || ac != c || len(acc.Counts) != c || len(a.scratch) != d {
		return fmt.Errorf("dimension mismatch: points %dx%d, centroids %dx%d, accumulator %dx%d", n, d, c, cd, ac, ad)
	}

	acc.Reset()

	for i := range n {
		p := points.RawRowView(i)
		k, _ := a.Nearest(p, centroids)

		floats.Add(acc.Sums.RawRowView(k), p)
		acc.Counts[k]++
	}

	return nil
}

// Nearest returns the index of the centroid closest to p and its distance.
func (a *Assigner) Nearest(p []float64, centroids *mat.Dense) (int, float64) {
	c, _ := centroids.Dims()

	best := -1
	bestDist := math.Inf(1)
	for k := range c {
		dist := a.distance(p, centroids.RawRowView(k))
		if dist < bestDist {
			best = k
			bestDist = dist
		}
	}

	// All distances were NaN; fall back to the first cluster so the point is still counted.
	if best < 0 {
		best = 0
	}

	return best, bestDist
}

// distance computes sqrt(sum((p-q)^2)).
func (a *Assigner) distance(p, q []float64) float64 {
	floats.SubTo(a.scratch, p, q)

	return math.Sqrt(floats.Dot(a.scratch, a.scratch))
}

// Assign is the allocating form of (*Assigner).Assign.
func Assign(points, centroids *mat.Dense) (*Accumulator, error) {
	_, d := points.Dims()
	c, _ := centroids.Dims()

	acc := NewAccumulator(c, d)
	if err := NewAssigner(d).Assign(points, centroids, acc); err != nil {
		return nil, err
	}

	return acc, nil
}
