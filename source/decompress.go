package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/arloliu/dkmeans/types"
)

// Compression identifies how a point stream is encoded.
type Compression int

const (
	// CompressionNone is plain text.
	CompressionNone Compression = iota
	// CompressionZstd is a zstd frame stream (".zst").
	CompressionZstd
	// CompressionGzip is a gzip stream (".gz").
	CompressionGzip
)

// DetectCompression infers the compression from a file name or object key.
func DetectCompression(name string) Compression {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return CompressionZstd
	case strings.HasSuffix(name, ".gz"):
		return CompressionGzip
	default:
		return CompressionNone
	}
}

// decompress wraps rc with the decoder for c. Closing the result closes rc.
func decompress(rc io.ReadCloser, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionZstd:
		dec, err := zstd.NewReader(rc, zstd.WithDecoderConcurrency(1))
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("%w: zstd: %w", types.ErrIO, err)
		}

		return &stackedCloser{Reader: dec, closers: []func() error{
			func() error { dec.Close(); return nil },
			rc.Close,
		}}, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("%w: gzip: %w", types.ErrIO, err)
		}

		return &stackedCloser{Reader: zr, closers: []func() error{zr.Close, rc.Close}}, nil
	default:
		return rc, nil
	}
}

// stackedCloser closes a decoder and then its underlying stream.
type stackedCloser struct {
	io.Reader
	closers []func() error
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}

	return first
}
