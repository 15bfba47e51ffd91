// Package storage abstracts the opaque blob store scans are uploaded to.
package storage

import (
	"context"
	"io"
)

// BlobStore reads and writes opaque blobs by key. Implementations treat
// content as already encrypted or otherwise safe to hand off.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, body io.Reader) (uri string, err error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
