package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/dkmeans/types"
)

// ObjectConfig holds S3/MinIO connection settings.
type ObjectConfig struct {
	// Endpoint is host[:port] of the S3-compatible service (e.g. "localhost:9000").
	Endpoint string

	// AccessKey and SecretKey are static credentials.
	AccessKey string
	SecretKey string

	// Region skips bucket location lookup when set.
	Region string

	// UseSSL selects https.
	UseSSL bool
}

// NewObjectClient creates a MinIO client from cfg.
func NewObjectClient(cfg ObjectConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: object storage endpoint is empty", types.ErrConfiguration)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: object storage client: %w", types.ErrConfiguration, err)
	}

	return client, nil
}

// ParseObjectURI splits "s3://bucket/key" into bucket and key.
func ParseObjectURI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not an s3:// URI", types.ErrConfiguration, uri)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q must name a bucket and a key", types.ErrConfiguration, uri)
	}

	return bucket, key, nil
}

// Object reads points from a comma-separated text object in S3 or MinIO.
//
// Every call issues its own GET, so workers stream only the prefix of the
// object they need.
type Object struct {
	client      *minio.Client
	bucket      string
	key         string
	d           int
	n           int
	compression Compression
}

var _ types.PointSource = (*Object)(nil)

// NewObject creates an object-backed point source.
//
// Parameters:
//   - client: MinIO client
//   - bucket: Bucket name
//   - key: Object key; ".zst" and ".gz" suffixes select decompression
//   - d: Dimension of each point
//   - n: Total number of points the object must hold
//
// Returns:
//   - *Object: Point source (nothing is fetched until the first read)
func NewObject(client *minio.Client, bucket, key string, d, n int) *Object {
	return &Object{
		client:      client,
		bucket:      bucket,
		key:         key,
		d:           d,
		n:           n,
		compression: DetectCompression(key),
	}
}

func (o *Object) String() string {
	return "s3://" + o.bucket + "/" + o.key
}

func (o *Object) open(ctx context.Context) (io.ReadCloser, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, o.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", types.ErrIO, o, err)
	}

	return decompress(obj, o.compression)
}

// ReadRange returns rows [start, end) as an (end-start)×d matrix.
func (o *Object) ReadRange(ctx context.Context, start, end int) (*mat.Dense, error) {
	if err := checkRange(start, end, o.n); err != nil {
		return nil, err
	}

	rc, err := o.open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := readRange(ctx, rc, o.d, o.n, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o, err)
	}

	return rows, nil
}

// ReadRows returns the rows at ascending indices in one sequential pass.
func (o *Object) ReadRows(ctx context.Context, indices []int) (*mat.Dense, error) {
	if err := checkIndices(indices, o.n); err != nil {
		return nil, err
	}

	rc, err := o.open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := readRows(ctx, rc, o.d, o.n, indices)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o, err)
	}

	return rows, nil
}
