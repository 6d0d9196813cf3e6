package gc

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/marmos91/dittobin/pkg/blob"
	"github.com/marmos91/dittobin/pkg/blob/backend/memory"
)

// treeSource is an in-test Source whose references can be changed between
// scans.
type treeSource struct {
	name string

	mu      sync.Mutex
	nodes   map[string]Node
	findErr error
	extra   []error
	calls   int
}

func newTreeSource(name string) *treeSource {
	return &treeSource{name: name, nodes: make(map[string]Node)}
}

func (s *treeSource) Name() string { return s.name }

func (s *treeSource) link(path string, id blob.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[path] = Node{Path: path, Property: id.Algorithm(), Value: id.Hex()}
}

func (s *treeSource) setRaw(path, property, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[path] = Node{Path: path, Property: property, Value: value}
}

func (s *treeSource) unlink(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, path)
}

func (s *treeSource) FindNodesWithAnyProperty(ctx context.Context, names []string) (NodeIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.findErr != nil {
		return nil, s.findErr
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var nodes []Node
	for _, n := range s.nodes {
		if want[n.Property] {
			nodes = append(nodes, n)
		}
	}
	it := NewSliceIterator(nodes)
	for _, err := range s.extra {
		it.Fail(err)
	}
	return it, nil
}

// deleteFailBackend fails every DeleteBlob while failing is set.
type deleteFailBackend struct {
	*memory.Store

	mu      sync.Mutex
	failing bool
}

func (b *deleteFailBackend) setFailing(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = v
}

func (b *deleteFailBackend) DeleteBlob(ctx context.Context, key string) error {
	b.mu.Lock()
	failing := b.failing
	b.mu.Unlock()
	if failing {
		return errors.New("injected delete failure")
	}
	return b.Store.DeleteBlob(ctx, key)
}

func newStore(t *testing.T) *blob.Store {
	t.Helper()
	s := blob.NewStore(memory.New(), blob.Options{})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func put(t *testing.T, s *blob.Store, data string) blob.ID {
	t.Helper()
	id := blob.FromBytes([]byte(data))
	if _, err := s.Put(context.Background(), id, uint64(len(data)), bytes.NewReader([]byte(data))); err != nil {
		t.Fatalf("Put(%q) failed: %v", data, err)
	}
	return id
}

func cycle(t *testing.T, c *Collector) *Report {
	t.Helper()
	rep, err := c.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	return rep
}

func stateOf(t *testing.T, s *blob.Store, id blob.ID) blob.State {
	t.Helper()
	info, err := s.Stat(id)
	if err != nil {
		t.Fatalf("Stat(%s) failed: %v", id, err)
	}
	return info.State
}
