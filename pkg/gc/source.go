package gc

import (
	"context"
	"io"
	"sync"
)

// Node is a tree node carrying a content identifier in one of its
// properties.
type Node struct {
	Path     string
	Property string
	Value    string
}

// NodeIterator streams nodes from a Source. Next returns io.EOF after the
// last node, and a *NodeError for a node that could not be read; any other
// error ends the enumeration of that source.
type NodeIterator interface {
	Next(ctx context.Context) (Node, error)
	Close() error
}

// Source enumerates the nodes of a metadata tree that carry at least one of
// the given properties.
type Source interface {
	Name() string
	FindNodesWithAnyProperty(ctx context.Context, names []string) (NodeIterator, error)
}

// Indexer is implemented by sources that can also be written to. The daemon
// uses it to maintain the artifact path index.
type Indexer interface {
	Source

	// SetProperty sets (or replaces) a property on the node at path.
	SetProperty(ctx context.Context, path, name, value string) error

	// Lookup returns the value of the first of names set on path, together
	// with the property that matched. ok is false when none is set.
	Lookup(ctx context.Context, path string, names []string) (value, property string, ok bool, err error)

	// RemoveNode drops every property of path. Removing an unknown path is
	// not an error.
	RemoveNode(ctx context.Context, path string) error

	Close() error
}

// SliceIterator iterates over a fixed slice of nodes. It is used by
// in-memory sources and by tests.
type SliceIterator struct {
	mu     sync.Mutex
	items  []item
	pos    int
	closed bool
}

type item struct {
	node Node
	err  error
}

// NewSliceIterator returns an iterator over nodes.
func NewSliceIterator(nodes []Node) *SliceIterator {
	items := make([]item, len(nodes))
	for i, n := range nodes {
		items[i] = item{node: n}
	}
	return &SliceIterator{items: items}
}

// Fail appends an entry that makes Next return err when reached.
func (it *SliceIterator) Fail(err error) *SliceIterator {
	it.items = append(it.items, item{err: err})
	return it
}

// Append adds nodes after the current entries.
func (it *SliceIterator) Append(nodes ...Node) *SliceIterator {
	for _, n := range nodes {
		it.items = append(it.items, item{node: n})
	}
	return it
}

func (it *SliceIterator) Next(ctx context.Context) (Node, error) {
	if err := ctx.Err(); err != nil {
		return Node{}, err
	}

	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed || it.pos >= len(it.items) {
		return Node{}, io.EOF
	}
	cur := it.items[it.pos]
	it.pos++
	if cur.err != nil {
		return Node{}, cur.err
	}
	return cur.node, nil
}

func (it *SliceIterator) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.closed = true
	return nil
}
