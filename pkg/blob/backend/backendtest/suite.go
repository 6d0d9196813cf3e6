// Package backendtest provides a conformance test suite for blob backend
// implementations.
//
// All backends (memory, filesystem, s3) should pass these tests:
//
//	func TestConformance(t *testing.T) {
//	    backendtest.RunConformanceSuite(t, func(t *testing.T) backend.BlobStore {
//	        return memory.New()
//	    })
//	}
package backendtest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/marmos91/dittobin/pkg/blob/backend"
)

// StoreFactory creates a fresh, empty backend for each test.
type StoreFactory func(t *testing.T) backend.BlobStore

// RunConformanceSuite runs every conformance test against fresh stores.
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("WriteAndOpen", func(t *testing.T) { testWriteAndOpen(t, factory) })
	t.Run("OpenNotFound", func(t *testing.T) { testOpenNotFound(t, factory) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, factory) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory) })
	t.Run("DeleteMissing", func(t *testing.T) { testDeleteMissing(t, factory) })
	t.Run("ListAndUsage", func(t *testing.T) { testListAndUsage(t, factory) })
	t.Run("ListStopsOnError", func(t *testing.T) { testListStopsOnError(t, factory) })
	t.Run("NonSeekableStream", func(t *testing.T) { testNonSeekableStream(t, factory) })
	t.Run("ConcurrentWrites", func(t *testing.T) { testConcurrentWrites(t, factory) })
	t.Run("HealthCheck", func(t *testing.T) { testHealthCheck(t, factory) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, factory) })
}

// Key returns a well-formed fan-out key for n.
func Key(n int) string {
	hex := fmt.Sprintf("%064x", n)
	return "sha256/" + hex[0:2] + "/" + hex[2:4] + "/" + hex
}

func write(t *testing.T, s backend.BlobStore, key string, data []byte) {
	t.Helper()
	if err := s.WriteBlob(t.Context(), key, bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("WriteBlob(%q) failed: %v", key, err)
	}
}

func read(t *testing.T, s backend.BlobStore, key string) []byte {
	t.Helper()
	rc, err := s.OpenBlob(t.Context(), key)
	if err != nil {
		t.Fatalf("OpenBlob(%q) failed: %v", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %q failed: %v", key, err)
	}
	return data
}

func testWriteAndOpen(t *testing.T, factory StoreFactory) {
	s := factory(t)
	data := []byte("hello world")

	write(t, s, Key(1), data)

	if got := read(t, s, Key(1)); !bytes.Equal(got, data) {
		t.Errorf("OpenBlob returned %q, want %q", got, data)
	}
}

func testOpenNotFound(t *testing.T, factory StoreFactory) {
	s := factory(t)

	_, err := s.OpenBlob(t.Context(), Key(404))
	if !errors.Is(err, backend.ErrBlobNotFound) {
		t.Errorf("OpenBlob returned %v, want %v", err, backend.ErrBlobNotFound)
	}
}

func testOverwrite(t *testing.T, factory StoreFactory) {
	s := factory(t)

	write(t, s, Key(1), []byte("first"))
	write(t, s, Key(1), []byte("second, longer"))

	if got := read(t, s, Key(1)); string(got) != "second, longer" {
		t.Errorf("OpenBlob returned %q after overwrite", got)
	}
	u, err := s.Usage(t.Context())
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if u.Count != 1 || u.Bytes != int64(len("second, longer")) {
		t.Errorf("Usage = %+v, want 1 blob of %d bytes", u, len("second, longer"))
	}
}

func testDelete(t *testing.T, factory StoreFactory) {
	s := factory(t)

	write(t, s, Key(1), []byte("data"))
	if err := s.DeleteBlob(t.Context(), Key(1)); err != nil {
		t.Fatalf("DeleteBlob failed: %v", err)
	}

	_, err := s.OpenBlob(t.Context(), Key(1))
	if !errors.Is(err, backend.ErrBlobNotFound) {
		t.Errorf("OpenBlob after delete returned %v, want %v", err, backend.ErrBlobNotFound)
	}
}

func testDeleteMissing(t *testing.T, factory StoreFactory) {
	s := factory(t)

	if err := s.DeleteBlob(t.Context(), Key(404)); err != nil {
		t.Errorf("DeleteBlob of missing key returned %v", err)
	}
}

func testListAndUsage(t *testing.T, factory StoreFactory) {
	s := factory(t)

	want := map[string]int64{}
	for i := 1; i <= 5; i++ {
		data := bytes.Repeat([]byte{'x'}, i*10)
		write(t, s, Key(i), data)
		want[Key(i)] = int64(len(data))
	}

	got := map[string]int64{}
	err := s.ListBlobs(t.Context(), func(key string, size int64) error {
		got[key] = size
		return nil
	})
	if err != nil {
		t.Fatalf("ListBlobs failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("ListBlobs returned %d keys, want %d: %v", len(got), len(want), keys(got))
	}
	for k, size := range want {
		if got[k] != size {
			t.Errorf("ListBlobs size for %q = %d, want %d", k, got[k], size)
		}
	}

	u, err := s.Usage(t.Context())
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if u.Count != 5 || u.Bytes != 150 {
		t.Errorf("Usage = %+v, want {Count:5 Bytes:150}", u)
	}
}

func testListStopsOnError(t *testing.T, factory StoreFactory) {
	s := factory(t)
	write(t, s, Key(1), []byte("a"))
	write(t, s, Key(2), []byte("b"))

	stop := errors.New("stop")
	calls := 0
	err := s.ListBlobs(t.Context(), func(string, int64) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("ListBlobs returned %v, want callback error", err)
	}
	if calls != 1 {
		t.Errorf("callback invoked %d times, want 1", calls)
	}
}

func testNonSeekableStream(t *testing.T, factory StoreFactory) {
	s := factory(t)
	data := strings.Repeat("stream ", 1000)

	// io.MultiReader hides Seek.
	r := io.MultiReader(strings.NewReader(data))
	if err := s.WriteBlob(t.Context(), Key(7), r, int64(len(data))); err != nil {
		t.Fatalf("WriteBlob failed: %v", err)
	}
	if got := read(t, s, Key(7)); string(got) != data {
		t.Errorf("content mismatch after streaming write (%d bytes)", len(got))
	}
}

func testConcurrentWrites(t *testing.T, factory StoreFactory) {
	s := factory(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := []byte(fmt.Sprintf("blob-%d", i%4))
			errs <- s.WriteBlob(t.Context(), Key(i%4), bytes.NewReader(data), int64(len(data)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent WriteBlob failed: %v", err)
		}
	}

	for i := 0; i < 4; i++ {
		if got := read(t, s, Key(i)); string(got) != fmt.Sprintf("blob-%d", i) {
			t.Errorf("Key(%d) = %q", i, got)
		}
	}
}

func testHealthCheck(t *testing.T, factory StoreFactory) {
	s := factory(t)
	if err := s.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func testClosed(t *testing.T, factory StoreFactory) {
	s := factory(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ctx := t.Context()
	if err := s.WriteBlob(ctx, Key(1), strings.NewReader("x"), 1); !errors.Is(err, backend.ErrStoreClosed) {
		t.Errorf("WriteBlob after close returned %v", err)
	}
	if _, err := s.OpenBlob(ctx, Key(1)); !errors.Is(err, backend.ErrStoreClosed) {
		t.Errorf("OpenBlob after close returned %v", err)
	}
	if err := s.DeleteBlob(ctx, Key(1)); !errors.Is(err, backend.ErrStoreClosed) {
		t.Errorf("DeleteBlob after close returned %v", err)
	}
	if err := s.HealthCheck(ctx); !errors.Is(err, backend.ErrStoreClosed) {
		t.Errorf("HealthCheck after close returned %v", err)
	}
}

func keys(m map[string]int64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
