package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/dkmeans/types"
)

const sampleCSV = "1,10\n2,20\n\n3, 30\n4,40\n\n"

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func zstdBytes(t *testing.T, data string) []byte {
	t.Helper()

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	return buf.Bytes()
}

func gzipBytes(t *testing.T, data string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestFile_ReadRange(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
	}{
		{name: "plain", file: "points.csv", data: []byte(sampleCSV)},
		{name: "zstd", file: "points.csv.zst", data: zstdBytes(t, sampleCSV)},
		{name: "gzip", file: "points.csv.gz", data: gzipBytes(t, sampleCSV)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewFile(writeFile(t, tt.file, tt.data), 2, 4)

			head, err := src.ReadRange(context.Background(), 0, 2)
			require.NoError(t, err)
			require.Equal(t, []float64{1, 10, 2, 20}, head.RawMatrix().Data)

			tail, err := src.ReadRange(context.Background(), 2, 4)
			require.NoError(t, err)
			require.Equal(t, []float64{3, 30, 4, 40}, tail.RawMatrix().Data)
		})
	}
}

func TestFile_ReadRows(t *testing.T) {
	src := NewFile(writeFile(t, "points.csv", []byte(sampleCSV)), 2, 4)

	rows, err := src.ReadRows(context.Background(), []int{1, 3})
	require.NoError(t, err)
	require.Equal(t, []float64{2, 20, 4, 40}, rows.RawMatrix().Data)
}

func TestFile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		d, n  int
		start int
		end   int
	}{
		{name: "too few rows", data: "1,1\n2,2\n", d: 2, n: 3, start: 0, end: 3},
		{name: "too few rows before range", data: "1,1\n", d: 2, n: 4, start: 2, end: 4},
		{name: "extra row for last worker", data: "1,1\n2,2\n3,3\n", d: 2, n: 2, start: 0, end: 2},
		{name: "too few fields", data: "1,1\n2\n", d: 2, n: 2, start: 0, end: 2},
		{name: "too many fields", data: "1,1,1\n2,2\n", d: 2, n: 2, start: 0, end: 2},
		{name: "not a number", data: "1,x\n2,2\n", d: 2, n: 2, start: 0, end: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewFile(writeFile(t, "points.csv", []byte(tt.data)), tt.d, tt.n)
			_, err := src.ReadRange(context.Background(), tt.start, tt.end)
			require.ErrorIs(t, err, types.ErrIO)
		})
	}
}

func TestFile_ExtraRowsIgnoredBeforeLastPartition(t *testing.T) {
	src := NewFile(writeFile(t, "points.csv", []byte("1\n2\n3\n")), 1, 2)

	rows, err := src.ReadRange(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Equal(t, []float64{1}, rows.RawMatrix().Data)
}

func TestFile_MalformedRowOutsideRangeIgnored(t *testing.T) {
	src := NewFile(writeFile(t, "points.csv", []byte("bad\n2\n")), 1, 2)

	rows, err := src.ReadRange(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Equal(t, []float64{2}, rows.RawMatrix().Data)
}

func TestFile_MissingFile(t *testing.T) {
	src := NewFile(filepath.Join(t.TempDir(), "nope.csv"), 1, 1)

	_, err := src.ReadRange(context.Background(), 0, 1)
	require.ErrorIs(t, err, types.ErrIO)

	_, err = src.ReadRows(context.Background(), []int{0})
	require.ErrorIs(t, err, types.ErrIO)
}

func TestFile_CorruptCompressedStream(t *testing.T) {
	src := NewFile(writeFile(t, "points.csv.gz", []byte("not gzip")), 1, 1)

	_, err := src.ReadRange(context.Background(), 0, 1)
	require.ErrorIs(t, err, types.ErrIO)
}

func TestFile_CancelledContext(t *testing.T) {
	var sb strings.Builder
	for range 3 * ctxCheckInterval {
		sb.WriteString("1\n")
	}
	src := NewFile(writeFile(t, "points.csv", []byte(sb.String())), 1, 3*ctxCheckInterval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.ReadRange(ctx, 0, 3*ctxCheckInterval)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDetectCompression(t *testing.T) {
	require.Equal(t, CompressionZstd, DetectCompression("a.csv.zst"))
	require.Equal(t, CompressionGzip, DetectCompression("s3://b/a.csv.gz"))
	require.Equal(t, CompressionNone, DetectCompression("a.csv"))
}
