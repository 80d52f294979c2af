// Package source provides built-in point source implementations.
//
// Point sources give row access to the global point set. The package includes:
//
//   - File: comma-separated text on local disk, optionally zstd or gzip compressed
//   - Object: the same text format stored in S3 or MinIO
//   - Static: rows held in memory
//
// Open picks File or Object from a path or s3:// URI. Custom sources can be
// implemented by satisfying the types.PointSource interface.
package source
