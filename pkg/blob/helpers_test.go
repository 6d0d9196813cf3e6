package blob

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittobin/pkg/blob/backend"
	"github.com/marmos91/dittobin/pkg/blob/backend/memory"
)

// hookBackend wraps the memory backend with failure injection and counters.
type hookBackend struct {
	*memory.Store

	writes  atomic.Int32
	deletes atomic.Int32

	mu         sync.Mutex
	writeDelay time.Duration
	writeErr   error
	writePanic any
	openErr    error
	deleteErr  error
}

func newHookBackend() *hookBackend {
	return &hookBackend{Store: memory.New()}
}

func (h *hookBackend) set(f func(h *hookBackend)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f(h)
}

func (h *hookBackend) WriteBlob(ctx context.Context, key string, r io.Reader, size int64) error {
	h.writes.Add(1)
	h.mu.Lock()
	delay, err, p := h.writeDelay, h.writeErr, h.writePanic
	h.mu.Unlock()

	if p != nil {
		panic(p)
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return err
	}
	return h.Store.WriteBlob(ctx, key, r, size)
}

func (h *hookBackend) OpenBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	h.mu.Lock()
	err := h.openErr
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return h.Store.OpenBlob(ctx, key)
}

func (h *hookBackend) DeleteBlob(ctx context.Context, key string) error {
	h.deletes.Add(1)
	h.mu.Lock()
	err := h.deleteErr
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return h.Store.DeleteBlob(ctx, key)
}

var _ backend.BlobStore = (*hookBackend)(nil)

func newTestStore(t *testing.T, opts Options) (*Store, *hookBackend) {
	t.Helper()
	b := newHookBackend()
	s := NewStore(b, opts)
	t.Cleanup(func() { _ = s.Close() })
	return s, b
}

func putBytes(t *testing.T, s *Store, data []byte) (ID, PutResult) {
	t.Helper()
	id := FromBytes(data)
	res, err := s.Put(context.Background(), id, uint64(len(data)), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Put(%s) failed: %v", id, err)
	}
	return id, res
}

func readAll(t *testing.T, s *Store, id ID) []byte {
	t.Helper()
	h, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	defer func() { _ = h.Close() }()
	data, err := io.ReadAll(h)
	if err != nil {
		t.Fatalf("read %s failed: %v", id, err)
	}
	return data
}

// sweepOut drives rec through two mark-and-sweep passes without touching it,
// leaving it MarkedForDeletion.
func sweepOut(t *testing.T, rec *Record) {
	t.Helper()
	for pass := 0; pass < 2; pass++ {
		if _, err := rec.BeginScan(); err != nil {
			t.Fatalf("BeginScan failed: %v", err)
		}
		marked := rec.MarkForDeletion(time.Now().Add(time.Second))
		if want := pass == 1; marked != want {
			t.Fatalf("pass %d: MarkForDeletion = %v, want %v", pass, marked, want)
		}
	}
}
