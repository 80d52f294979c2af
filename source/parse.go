package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/dkmeans/types"
)

const (
	// ctxCheckInterval is how many lines are scanned between cancellation checks.
	ctxCheckInterval = 4096

	maxLineBytes = 64 << 20
)

// rowScanner reads d-dimensional comma-separated rows, skipping blank lines.
type rowScanner struct {
	sc   *bufio.Scanner
	d    int
	line int
	row  int
}

func newRowScanner(r io.Reader, d int) *rowScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	return &rowScanner{sc: sc, d: d}
}

// next advances to the next non-blank line. It returns io.EOF at the end of input.
func (s *rowScanner) next() (string, error) {
	for s.sc.Scan() {
		s.line++
		text := strings.TrimSpace(s.sc.Text())
		if text == "" {
			continue
		}
		s.row++

		return text, nil
	}
	if err := s.sc.Err(); err != nil {
		return "", fmt.Errorf("%w: line %d: %w", types.ErrIO, s.line+1, err)
	}

	return "", io.EOF
}

// parse decodes one line into dst, which must have length d.
func (s *rowScanner) parse(text string, dst []float64) error {
	rest := text
	for j := range s.d {
		field, tail, found := strings.Cut(rest, ",")
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return fmt.Errorf("%w: line %d field %d: %w", types.ErrIO, s.line, j+1, err)
		}
		dst[j] = v

		if !found {
			if j != s.d-1 {
				return fmt.Errorf("%w: line %d has %d fields, want %d", types.ErrIO, s.line, j+1, s.d)
			}

			return nil
		}
		rest = tail
	}

	return fmt.Errorf("%w: line %d has more than %d fields", types.ErrIO, s.line, s.d)
}

func checkCtx(ctx context.Context, line int) error {
	if line%ctxCheckInterval != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}

	return nil
}

func checkRange(start, end, n int) error {
	if start < 0 || start >= end || end > n {
		return fmt.Errorf("%w: row range [%d,%d) invalid for %d points", types.ErrConfiguration, start, end, n)
	}

	return nil
}

func checkIndices(indices []int, n int) error {
	if len(indices) == 0 {
		return fmt.Errorf("%w: no row indices requested", types.ErrConfiguration)
	}
	if !slices.IsSorted(indices) || indices[0] < 0 || indices[len(indices)-1] >= n {
		return fmt.Errorf("%w: row indices must be ascending within [0,%d)", types.ErrConfiguration, n)
	}
	for i := 1; i < len(indices); i++ {
		if indices[i] == indices[i-1] {
			return fmt.Errorf("%w: duplicate row index %d", types.ErrConfiguration, indices[i])
		}
	}

	return nil
}

// readRange reads rows [start, end) of an n-row stream.
//
// Rows before start are skipped without parsing. When end == n the rest of
// the stream must contain only blank lines.
func readRange(ctx context.Context, r io.Reader, d, n, start, end int) (*mat.Dense, error) {
	if err := checkRange(start, end, n); err != nil {
		return nil, err
	}

	s := newRowScanner(r, d)
	out := mat.NewDense(end-start, d, nil)

	for i := 0; i < end; i++ {
		text, err := s.next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: source ended after %d rows, expected %d", types.ErrIO, i, n)
		}
		if err != nil {
			return nil, err
		}
		if err := checkCtx(ctx, s.line); err != nil {
			return nil, err
		}
		if i < start {
			continue
		}
		if err := s.parse(text, out.RawRowView(i-start)); err != nil {
			return nil, err
		}
	}

	if end == n {
		if err := expectEOF(s, n); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// readRows reads the rows at ascending indices in one pass.
func readRows(ctx context.Context, r io.Reader, d, n int, indices []int) (*mat.Dense, error) {
	if err := checkIndices(indices, n); err != nil {
		return nil, err
	}

	s := newRowScanner(r, d)
	out := mat.NewDense(len(indices), d, nil)

	next := 0
	for i := 0; next < len(indices); i++ {
		text, err := s.next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: source ended after %d rows, expected %d", types.ErrIO, i, n)
		}
		if err != nil {
			return nil, err
		}
		if err := checkCtx(ctx, s.line); err != nil {
			return nil, err
		}
		if i != indices[next] {
			continue
		}
		if err := s.parse(text, out.RawRowView(next)); err != nil {
			return nil, err
		}
		next++
	}

	return out, nil
}

func expectEOF(s *rowScanner, n int) error {
	_, err := s.next()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}

	return fmt.Errorf("%w: source has more than %d rows (extra row at line %d)", types.ErrIO, n, s.line)
}
