package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/dkmeans/types"
)

// File reads points from a comma-separated text file.
//
// Every call opens the file independently, so workers sharing one File never
// contend on a file offset.
type File struct {
	path        string
	d           int
	n           int
	compression Compression
}

var _ types.PointSource = (*File)(nil)

// NewFile creates a file-backed point source.
//
// Parameters:
//   - path: File path; ".zst" and ".gz" suffixes select decompression
//   - d: Dimension of each point
//   - n: Total number of points the file must hold
//
// Returns:
//   - *File: Point source (the file is not opened until the first read)
//
// Example:
//
//	src := source.NewFile("points.csv.zst", 2, 1000000)
//	rows, err := src.ReadRange(ctx, 0, 250000)
func NewFile(path string, d, n int) *File {
	return &File{path: path, d: d, n: n, compression: DetectCompression(path)}
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) open() (io.ReadCloser, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", types.ErrIO, f.path, err)
	}

	return decompress(fh, f.compression)
}

// ReadRange returns rows [start, end) as an (end-start)×d matrix.
func (f *File) ReadRange(ctx context.Context, start, end int) (*mat.Dense, error) {
	if err := checkRange(start, end, f.n); err != nil {
		return nil, err
	}

	rc, err := f.open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := readRange(ctx, rc, f.d, f.n, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}

	return rows, nil
}

// ReadRows returns the rows at ascending indices in one sequential pass.
func (f *File) ReadRows(ctx context.Context, indices []int) (*mat.Dense, error) {
	if err := checkIndices(indices, f.n); err != nil {
		return nil, err
	}

	rc, err := f.open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := readRows(ctx, rc, f.d, f.n, indices)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}

	return rows, nil
}
