package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobin/pkg/gc"
	"github.com/marmos91/dittobin/pkg/gc/source/sourcetest"
)

func TestConformance(t *testing.T) {
	sourcetest.RunConformanceSuite(t, func(t *testing.T) gc.Indexer {
		return New("")
	})
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := t.Context()
	s := New("tree")
	require.NoError(t, s.SetProperty(ctx, "a", "sha256", "1"))

	it, err := s.FindNodesWithAnyProperty(ctx, []string{"sha256"})
	require.NoError(t, err)

	require.NoError(t, s.SetProperty(ctx, "b", "sha256", "2"))
	require.NoError(t, s.RemoveNode(ctx, "a"))

	nodes := sourcetest.Collect(t, it)
	assert.Equal(t, []gc.Node{{Path: "a", Property: "sha256", Value: "1"}}, nodes)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "tree", s.Name())
}
