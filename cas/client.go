// Package cas implements the content-addressed blob store client (spec.md
// §4.7): a local flat-file cache, a pluggable remote backend, and the
// streaming compression codec used on the wire and at rest.
package cas

import (
	"context"
	"io"
)

// Backend is the remote half of the CAS: a place blobs live keyed by the
// hash of their uncompressed content. The default backend talks to the
// hurry remote API (spec.md §6 wire protocol); cas/backend provides
// alternates (S3, Azure Blob, GCS) for self-hosted deployments
// (SPEC_FULL.md §4).
type Backend interface {
	// Head reports whether key is present, without downloading it.
	Head(ctx context.Context, key string) (present bool, err error)
	// Put uploads content read from r, which the backend may compress in
	// flight; the backend is responsible for tagging stored objects with
	// enough metadata to decompress on Get.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Get streams the uncompressed content of key to w. The CAS client
	// (not the backend) is responsible for verifying the content hash.
	Get(ctx context.Context, key string, w io.Writer) error
}
