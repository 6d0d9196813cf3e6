// Package backend defines the physical persistence layer behind the blob
// store. Implementations are pass-through: they store opaque bytes under a
// key and know nothing about deduplication or garbage collection.
package backend

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrBlobNotFound is returned when no object exists under a key.
	ErrBlobNotFound = errors.New("backend: blob not found")

	// ErrStoreClosed is returned by every operation after Close.
	ErrStoreClosed = errors.New("backend: store is closed")
)

// Usage summarizes what a backend currently holds.
type Usage struct {
	Count int64
	Bytes int64
}

// BlobStore is the interface implemented by physical backends.
//
// Keys are slash separated, for example "sha256/ab/cd/abcd...". All methods
// must be safe for concurrent use.
type BlobStore interface {
	// Type returns a short backend name ("memory", "filesystem", "s3").
	Type() string

	// WriteBlob stores size bytes read from r under key, replacing any
	// existing object. The object must not become visible to OpenBlob or
	// ListBlobs unless the whole stream was stored.
	WriteBlob(ctx context.Context, key string, r io.Reader, size int64) error

	// OpenBlob returns a reader for the object under key.
	// Returns ErrBlobNotFound if the key does not exist.
	OpenBlob(ctx context.Context, key string) (io.ReadCloser, error)

	// DeleteBlob removes the object under key. Deleting a missing key is not
	// an error.
	DeleteBlob(ctx context.Context, key string) error

	// ListBlobs calls fn for every stored object. Returning an error from fn
	// stops the listing and is returned as is.
	ListBlobs(ctx context.Context, fn func(key string, size int64) error) error

	// Usage returns the number of objects and the total stored bytes.
	Usage(ctx context.Context) (Usage, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources. Further calls return ErrStoreClosed.
	Close() error
}

// UsageFromList computes Usage by walking ListBlobs. Backends without a
// cheaper way to count use it.
func UsageFromList(ctx context.Context, s BlobStore) (Usage, error) {
	var u Usage
	err := s.ListBlobs(ctx, func(_ string, size int64) error {
		u.Count++
		u.Bytes += size
		return nil
	})
	return u, err
}
