package source

import (
	"fmt"
	"strings"

	"github.com/arloliu/dkmeans/types"
)

// Open returns the point source for path.
//
// An "s3://bucket/key" URI yields an Object using objCfg; anything else is a
// local File. Nothing is read until the first ReadRange or ReadRows call, so
// a missing file surfaces as ErrIO from the read, not from Open.
//
// Parameters:
//   - path: Local path or s3:// URI
//   - d: Dimension of each point
//   - n: Total number of points
//   - objCfg: Object storage settings (only used for s3:// URIs)
//
// Returns:
//   - types.PointSource: File or Object source
//   - error: ErrConfiguration for an empty path, a malformed URI or bad client settings
func Open(path string, d, n int, objCfg ObjectConfig) (types.PointSource, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: data path is empty", types.ErrConfiguration)
	}

	if !strings.HasPrefix(path, "s3://") {
		return NewFile(path, d, n), nil
	}

	bucket, key, err := ParseObjectURI(path)
	if err != nil {
		return nil, err
	}

	client, err := NewObjectClient(objCfg)
	if err != nil {
		return nil, err
	}

	return NewObject(client, bucket, key, d, n), nil
}
