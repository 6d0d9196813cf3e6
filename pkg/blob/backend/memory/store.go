// Package memory provides an in-memory blob backend for tests and
// ephemeral deployments.
package memory

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/marmos91/dittobin/pkg/blob/backend"
)

// Store is an in-memory implementation of backend.BlobStore.
type Store struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	bytes  int64
	closed bool
}

// New creates an empty in-memory backend.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

func (s *Store) Type() string { return "memory" }

// maxPrealloc bounds the buffer reserved up front from the declared size.
// The declared size comes from the client and is only checked after the
// stream ends.
const maxPrealloc = 4 << 20

// WriteBlob buffers the whole stream before publishing it.
func (s *Store) WriteBlob(ctx context.Context, key string, r io.Reader, size int64) error {
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(min(size, maxPrealloc)))
	}
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return backend.ErrStoreClosed
	}
	if old, ok := s.blobs[key]; ok {
		s.bytes -= int64(len(old))
	}
	s.blobs[key] = buf.Bytes()
	s.bytes += int64(buf.Len())
	return nil
}

func (s *Store) OpenBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, backend.ErrStoreClosed
	}
	data, ok := s.blobs[key]
	if !ok {
		return nil, backend.ErrBlobNotFound
	}
	// Stored slices are never mutated, so readers can share them.
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) DeleteBlob(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return backend.ErrStoreClosed
	}
	if data, ok := s.blobs[key]; ok {
		s.bytes -= int64(len(data))
		delete(s.blobs, key)
	}
	return nil
}

// ListBlobs walks a sorted snapshot so fn may call back into the store.
func (s *Store) ListBlobs(ctx context.Context, fn func(key string, size int64) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return backend.ErrStoreClosed
	}
	keys := make([]string, 0, len(s.blobs))
	sizes := make(map[string]int64, len(s.blobs))
	for k, v := range s.blobs {
		keys = append(keys, k)
		sizes[k] = int64(len(v))
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, sizes[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Usage(ctx context.Context) (backend.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return backend.Usage{}, backend.ErrStoreClosed
	}
	return backend.Usage{Count: int64(len(s.blobs)), Bytes: s.bytes}, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return backend.ErrStoreClosed
	}
	return nil
}

// Close drops all data.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.blobs = nil
	s.bytes = 0
	return nil
}

var _ backend.BlobStore = (*Store)(nil)
