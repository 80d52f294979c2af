// Package kmeans implements the per-worker stages of distributed Lloyd iterations.
//
// One iteration on every worker is:
//
//	Assign (local, pure) → Reduce (sum all-reduce) → Update (local, pure)
//
// Assign and Update never communicate. Reduce is the only stage that touches the
// Communicator, and because the communicator combines contributions in rank
// order on a single rank, the reduced sums and counts, and therefore the updated
// centroids, are bitwise identical on every worker without an extra broadcast.
//
// Seeding runs once before the first iteration: the coordinator samples C
// distinct row indices, reads those rows in one pass, and broadcasts the matrix.
//
// Matrices are gonum *mat.Dense values created with mat.NewDense, so their
// backing buffer is contiguous (stride == columns) and can be handed to the
// communicator as a flat slice.
package kmeans
