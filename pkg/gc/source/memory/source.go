// Package memory provides a map-backed path index implementing gc.Indexer.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/marmos91/dittobin/pkg/gc"
)

// Source keeps node properties in memory.
type Source struct {
	name string

	mu    sync.RWMutex
	nodes map[string]map[string]string // path -> property -> value
}

// New creates an empty index.
func New(name string) *Source {
	if name == "" {
		name = "memory"
	}
	return &Source{name: name, nodes: make(map[string]map[string]string)}
}

func (s *Source) Name() string { return s.name }

func (s *Source) SetProperty(ctx context.Context, path, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	props, ok := s.nodes[path]
	if !ok {
		props = make(map[string]string)
		s.nodes[path] = props
	}
	props[name] = value
	return nil
}

func (s *Source) Lookup(ctx context.Context, path string, names []string) (string, string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	props := s.nodes[path]
	for _, n := range names {
		if v, ok := props[n]; ok {
			return v, n, true, nil
		}
	}
	return "", "", false, nil
}

func (s *Source) RemoveNode(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, path)
	return nil
}

// FindNodesWithAnyProperty iterates over a snapshot taken at call time,
// ordered by path.
func (s *Source) FindNodesWithAnyProperty(ctx context.Context, names []string) (gc.NodeIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	paths := make([]string, 0, len(s.nodes))
	for p := range s.nodes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var nodes []gc.Node
	for _, p := range paths {
		props := s.nodes[p]
		for _, n := range names {
			if v, ok := props[n]; ok {
				nodes = append(nodes, gc.Node{Path: p, Property: n, Value: v})
			}
		}
	}
	s.mu.RUnlock()

	return gc.NewSliceIterator(nodes), nil
}

// Len returns the number of indexed paths.
func (s *Source) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *Source) Close() error { return nil }

var _ gc.Indexer = (*Source)(nil)
