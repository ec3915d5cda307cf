// Package storage defines the narrow object-storage contract the export
// pipeline consumes, and its S3-compatible implementation.
package storage

import (
	"context"
	"time"
)

// PresignedURL is a temporary URL a client can use directly against the
// storage backend.
type PresignedURL struct {
	URL       string
	Headers   map[string]string
	ExpiresIn time.Duration
}

// ObjectStorage is the collaborator interface for archive bytes. The
// server never streams archive content through its own HTTP surface;
// downloads go straight to the backend via presigned URLs.
type ObjectStorage interface {
	// PresignUpload returns a URL for a client-side PUT of the object.
	PresignUpload(ctx context.Context, key, contentType string, length int64) (*PresignedURL, error)

	// PresignDownload returns a URL for a client-side GET of the object.
	PresignDownload(ctx context.Context, key string) (*PresignedURL, error)

	// Put writes the object server-side.
	Put(ctx context.Context, key, contentType string, data []byte) error

	// Delete removes the object. Deleting a missing object is not an
	// error.
	Delete(ctx context.Context, key string) error
}
