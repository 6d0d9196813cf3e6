// Package sourcetest is a conformance suite for gc.Indexer implementations.
package sourcetest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobin/pkg/blob"
	"github.com/marmos91/dittobin/pkg/blob/backend/memory"
	"github.com/marmos91/dittobin/pkg/gc"
)

// IndexerFactory creates a fresh, empty Indexer for each test. Factories
// register teardown with t.Cleanup.
type IndexerFactory func(t *testing.T) gc.Indexer

// RunConformanceSuite runs every test against indexers built by factory.
func RunConformanceSuite(t *testing.T, factory IndexerFactory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, idx gc.Indexer)
	}{
		{"SetAndLookup", testSetAndLookup},
		{"LookupOrder", testLookupOrder},
		{"Overwrite", testOverwrite},
		{"RemoveNode", testRemoveNode},
		{"RemoveMissing", testRemoveMissing},
		{"FindFiltersProperties", testFindFiltersProperties},
		{"FindEmpty", testFindEmpty},
		{"CloseIteratorEarly", testCloseIteratorEarly},
		{"PathsWithSeparators", testPathsWithSeparators},
		{"DrivesCollector", testDrivesCollector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, factory(t))
		})
	}
}

// Collect drains an iterator.
func Collect(t *testing.T, it gc.NodeIterator) []gc.Node {
	t.Helper()
	defer func() { _ = it.Close() }()

	var nodes []gc.Node
	for {
		n, err := it.Next(t.Context())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Path != nodes[j].Path {
			return nodes[i].Path < nodes[j].Path
		}
		return nodes[i].Property < nodes[j].Property
	})
	return nodes
}

func hexOf(s string) string { return blob.FromBytes([]byte(s)).Hex() }

func testSetAndLookup(t *testing.T, idx gc.Indexer) {
	ctx := t.Context()
	require.NoError(t, idx.SetProperty(ctx, "repo/a.jar", "sha256", hexOf("a")))

	v, prop, ok, err := idx.Lookup(ctx, "repo/a.jar", []string{"sha256"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sha256", prop)
	assert.Equal(t, hexOf("a"), v)

	_, _, ok, err = idx.Lookup(ctx, "repo/missing.jar", []string{"sha256"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func testLookupOrder(t *testing.T, idx gc.Indexer) {
	ctx := t.Context()
	require.NoError(t, idx.SetProperty(ctx, "p", "sha512", "second"))
	require.NoError(t, idx.SetProperty(ctx, "p", "sha256", "first"))

	v, prop, ok, err := idx.Lookup(ctx, "p", []string{"sha256", "sha512"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sha256", prop)
	assert.Equal(t, "first", v)

	v, prop, ok, err = idx.Lookup(ctx, "p", []string{"md5", "sha512"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sha512", prop)
	assert.Equal(t, "second", v)
}

func testOverwrite(t *testing.T, idx gc.Indexer) {
	ctx := t.Context()
	require.NoError(t, idx.SetProperty(ctx, "p", "sha256", hexOf("old")))
	require.NoError(t, idx.SetProperty(ctx, "p", "sha256", hexOf("new")))

	it, err := idx.FindNodesWithAnyProperty(ctx, []string{"sha256"})
	require.NoError(t, err)
	nodes := Collect(t, it)
	require.Len(t, nodes, 1)
	assert.Equal(t, hexOf("new"), nodes[0].Value)
}

func testRemoveNode(t *testing.T, idx gc.Indexer) {
	ctx := t.Context()
	require.NoError(t, idx.SetProperty(ctx, "gone", "sha256", hexOf("x")))
	require.NoError(t, idx.SetProperty(ctx, "gone", "sha512", "y"))
	require.NoError(t, idx.SetProperty(ctx, "kept", "sha256", hexOf("z")))

	require.NoError(t, idx.RemoveNode(ctx, "gone"))

	_, _, ok, err := idx.Lookup(ctx, "gone", []string{"sha256", "sha512"})
	require.NoError(t, err)
	assert.False(t, ok)

	it, err := idx.FindNodesWithAnyProperty(ctx, []string{"sha256", "sha512"})
	require.NoError(t, err)
	nodes := Collect(t, it)
	require.Len(t, nodes, 1)
	assert.Equal(t, "kept", nodes[0].Path)
}

func testRemoveMissing(t *testing.T, idx gc.Indexer) {
	assert.NoError(t, idx.RemoveNode(t.Context(), "never/indexed"))
}

func testFindFiltersProperties(t *testing.T, idx gc.Indexer) {
	ctx := t.Context()
	require.NoError(t, idx.SetProperty(ctx, "a", "sha256", "va"))
	require.NoError(t, idx.SetProperty(ctx, "b", "sha256", "vb"))
	require.NoError(t, idx.SetProperty(ctx, "b", "sha1", "vb1"))
	require.NoError(t, idx.SetProperty(ctx, "c", "build.number", "42"))

	it, err := idx.FindNodesWithAnyProperty(ctx, []string{"sha256", "sha1"})
	require.NoError(t, err)
	nodes := Collect(t, it)

	assert.Equal(t, []gc.Node{
		{Path: "a", Property: "sha256", Value: "va"},
		{Path: "b", Property: "sha1", Value: "vb1"},
		{Path: "b", Property: "sha256", Value: "vb"},
	}, nodes)
}

func testFindEmpty(t *testing.T, idx gc.Indexer) {
	it, err := idx.FindNodesWithAnyProperty(t.Context(), []string{"sha256"})
	require.NoError(t, err)
	assert.Empty(t, Collect(t, it))
}

func testCloseIteratorEarly(t *testing.T, idx gc.Indexer) {
	ctx := t.Context()
	for i := 0; i < 5; i++ {
		require.NoError(t, idx.SetProperty(ctx, fmt.Sprintf("n%d", i), "sha256", "v"))
	}

	it, err := idx.FindNodesWithAnyProperty(ctx, []string{"sha256"})
	require.NoError(t, err)
	_, err = it.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, it.Close())

	// The index stays writable after an abandoned enumeration.
	require.NoError(t, idx.SetProperty(ctx, "after", "sha256", "v"))
}

func testPathsWithSeparators(t *testing.T, idx gc.Indexer) {
	ctx := t.Context()
	paths := []string{"libs/org/app/1.0/app-1.0.jar", "libs/org/app/1.0/app-1.0.pom", "libs:colon/x"}
	for _, p := range paths {
		require.NoError(t, idx.SetProperty(ctx, p, "sha256", p))
	}
	require.NoError(t, idx.RemoveNode(ctx, "libs/org/app/1.0"))

	it, err := idx.FindNodesWithAnyProperty(ctx, []string{"sha256"})
	require.NoError(t, err)
	nodes := Collect(t, it)
	require.Len(t, nodes, len(paths))
	for _, n := range nodes {
		assert.Equal(t, n.Path, n.Value)
	}
}

// testDrivesCollector checks the index end to end as a collector source.
func testDrivesCollector(t *testing.T, idx gc.Indexer) {
	ctx := context.Background()
	store := blob.NewStore(memory.New(), blob.Options{})
	t.Cleanup(func() { _ = store.Close() })

	put := func(s string) blob.ID {
		id := blob.FromBytes([]byte(s))
		_, err := store.Put(ctx, id, uint64(len(s)), bytes.NewReader([]byte(s)))
		require.NoError(t, err)
		return id
	}
	kept := put("kept")
	dropped := put("dropped")
	require.NoError(t, idx.SetProperty(ctx, "kept.bin", "sha256", kept.Hex()))
	require.NoError(t, idx.SetProperty(ctx, "dropped.bin", "sha256", dropped.String()))

	c := gc.New(store, []gc.Source{idx}, gc.Options{})
	rep, err := c.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Sources, 1)
	assert.Equal(t, 2, rep.Sources[0].Reachable)
	assert.False(t, rep.Sources[0].Failed())

	require.NoError(t, idx.RemoveNode(ctx, "dropped.bin"))
	for i := 0; i < 2; i++ {
		_, err = c.RunCycle(ctx)
		require.NoError(t, err)
	}

	_, err = store.Get(ctx, dropped)
	assert.ErrorIs(t, err, blob.ErrNotFound)

	h, err := store.Get(ctx, kept)
	require.NoError(t, err)
	_ = h.Close()
}
