package kmeans

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Update replaces each centroid with the mean of its cluster.
//
// For every cluster k with count[k] > 0, centroids[k] = sums[k] / count[k].
// A cluster that received no points keeps its previous centroid, so the matrix
// never contains NaN from a zero division.
//
// Parameters:
//   - centroids: C×d matrix updated in place
//   - acc: Global (reduced) sums and counts
//
// Returns:
//   - []int: Indices of clusters that were empty this iteration (nil if none)
//   - error: Dimension mismatch
func Update(centroids *mat.Dense, acc *Accumulator) ([]int, error) {
	c, d := centroids.Dims()
	ac, ad := acc.Sums.Dims()
	if ac != c || ad != d || len(acc.Counts) != c {
		return nil, fmt.Errorf("dimension mismatch: centroids %dx%d, accumulator %dx%d", c, d, ac, ad)
	}

	var empty []int
	for k := range c {
		count := acc.Counts[k]
		if count == 0 {
			empty = append(empty, k)
			continue
		}

		row := centroids.RawRowView(k)
		sum := acc.Sums.RawRowView(k)
		n := float64(count)
		for j := range row {
			row[j] = sum[j] / n
		}
	}

	return empty, nil
}
