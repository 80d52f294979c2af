package dkmeans

import (
	"bufio"
	"fmt"
	"io"
)

// WriteReport writes the coordinator's result in the classic text format:
//
//	centers:
//	1.000000 2.000000
//	...
//	Time elapsed is 0.012345 seconds.
//
// Every value is followed by a single space, so rows carry a trailing blank.
//
// Returns:
//   - error: ErrConfiguration if res carries no centroids (a non-coordinator
//     result), or the first write error
func WriteReport(w io.Writer, res *Result) error {
	if res == nil || res.Centroids == nil {
		return fmt.Errorf("%w: result has no centroids, only the coordinator reports", ErrConfiguration)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "centers:")

	rows, _ := res.Centroids.Dims()
	for i := range rows {
		for _, v := range res.Centroids.RawRowView(i) {
			fmt.Fprintf(bw, "%f ", v)
		}
		_ = bw.WriteByte('\n')
	}

	fmt.Fprintf(bw, "Time elapsed is %f seconds.\n", res.Elapsed.Seconds())

	return bw.Flush()
}
