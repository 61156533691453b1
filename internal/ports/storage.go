// Package ports declares the contracts renderhub needs from external
// systems.
package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// ObjectKey is how the provider addresses the stored object afterwards.
	// For localfs and s3 it is the requested key; for gdrive the file id.
	ObjectKey string
	Size      int64
}

// StorageProvider is durable object storage for render artifacts
// (s3, localfs, gdrive).
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)

	// ObjectURL returns a URL clients can fetch the stored object from.
	ObjectURL(ctx context.Context, objectKey string) (string, error)

	// Ping checks the backend is reachable and usable.
	Ping(ctx context.Context) error
}
