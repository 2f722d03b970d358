package hnsw

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torinriley/vecstream/pkg/filter"
)

func testConfig() Config {
	return Config{M: 8, EfConstruction: 64, EfSearch: 32, Seed: 42}
}

func TestIndex_InsertAndSearchOrdersByCosineDistance(t *testing.T) {
	idx := New(3, testConfig())

	require.NoError(t, idx.Insert("a", []float32{1, 0, 0}))
	require.NoError(t, idx.Insert("b", []float32{0, 1, 0}))
	require.NoError(t, idx.Insert("c", []float32{0.9, 0.1, 0}))

	results, err := idx.Search([]float32{1, 0, 0}, 3, 50)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].ID)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
}

func TestIndex_InsertRejectsDimensionMismatch(t *testing.T) {
	idx := New(3, testConfig())
	require.NoError(t, idx.Insert("a", []float32{1, 0, 0}))

	err := idx.Insert("b", []float32{1, 0})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestIndex_SearchRejectsDimensionMismatch(t *testing.T) {
	idx := New(3, testConfig())
	require.NoError(t, idx.Insert("a", []float32{1, 0, 0}))

	_, err := idx.Search([]float32{1, 0}, 1, 10)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestIndex_SearchOnEmptyIndex(t *testing.T) {
	idx := New(3, testConfig())
	results, err := idx.Search([]float32{1, 0, 0}, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_RemoveEntryPointPicksStableReplacement(t *testing.T) {
	idx := New(2, testConfig())
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("v%02d", i)
		require.NoError(t, idx.Insert(id, []float32{float32(i), 1}))
	}

	ep := idx.EntryPoint()
	require.NotEmpty(t, ep)

	idx.Remove(ep)
	assert.NotEqual(t, ep, idx.EntryPoint())
	assert.Equal(t, 19, idx.Size())

	_, ok := idx.nodes[idx.EntryPoint()]
	assert.True(t, ok)
}

func TestIndex_RemoveIsIdempotentForUnknownID(t *testing.T) {
	idx := New(3, testConfig())
	require.NoError(t, idx.Insert("a", []float32{1, 0, 0}))
	idx.Remove("does-not-exist")
	assert.Equal(t, 1, idx.Size())
}

func TestIndex_RemoveLastNodeClearsEntryPoint(t *testing.T) {
	idx := New(3, testConfig())
	require.NoError(t, idx.Insert("a", []float32{1, 0, 0}))
	idx.Remove("a")
	assert.Equal(t, 0, idx.Size())
	assert.Empty(t, idx.EntryPoint())
}

func TestIndex_FilteredSearchAppliesPredicate(t *testing.T) {
	idx := New(3, testConfig())
	meta := map[string]map[string]any{
		"a": {"lang": "en"},
		"b": {"lang": "fr"},
		"c": {"lang": "en"},
	}
	require.NoError(t, idx.Insert("a", []float32{1, 0, 0}))
	require.NoError(t, idx.Insert("b", []float32{0.95, 0.05, 0}))
	require.NoError(t, idx.Insert("c", []float32{0.9, 0.1, 0}))

	lookup := func(id string) (map[string]any, bool) {
		m, ok := meta[id]
		return m, ok
	}
	fallbackCalled := false
	fallback := func(query []float32, k int, pred filter.Predicate) ([]FallbackResult, error) {
		fallbackCalled = true
		return nil, nil
	}

	results, err := idx.FilteredSearch([]float32{1, 0, 0}, 2, 50, filter.Predicate{"lang": "en"}, lookup, fallback)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "en", meta[r.ID]["lang"])
	}
	assert.False(t, fallbackCalled)
}

func TestIndex_FilteredSearchFallsBackWhenPoolTooSmall(t *testing.T) {
	idx := New(3, testConfig())
	meta := map[string]map[string]any{
		"a": {"lang": "en"},
		"b": {"lang": "fr"},
		"c": {"lang": "fr"},
	}
	require.NoError(t, idx.Insert("a", []float32{1, 0, 0}))
	require.NoError(t, idx.Insert("b", []float32{0, 1, 0}))
	require.NoError(t, idx.Insert("c", []float32{0, 0, 1}))

	lookup := func(id string) (map[string]any, bool) {
		m, ok := meta[id]
		return m, ok
	}
	fallback := func(query []float32, k int, pred filter.Predicate) ([]FallbackResult, error) {
		return []FallbackResult{{ID: "a", Similarity: 1.0}}, nil
	}

	results, err := idx.FilteredSearch([]float32{1, 0, 0}, 5, 50, filter.Predicate{"lang": "en"}, lookup, fallback)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestIndex_ExportImportRoundTrip(t *testing.T) {
	idx := New(3, testConfig())
	vectors := map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0.9, 0.1, 0},
	}
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, idx.Insert(id, vectors[id]))
	}

	snap := idx.Export()
	restored, err := Import(3, testConfig(), vectors, snap)
	require.NoError(t, err)

	assert.Equal(t, idx.EntryPoint(), restored.EntryPoint())
	assert.Equal(t, idx.Size(), restored.Size())

	results, err := restored.Search([]float32{1, 0, 0}, 3, 50)
	require.NoError(t, err)
	assert.Equal(t, "a", results[0].ID)
}

func TestImport_RejectsUnknownNeighborReference(t *testing.T) {
	vectors := map[string][]float32{"a": {1, 0, 0}}
	snap := Snapshot{
		EntryPoint: "a",
		TopLevel:   0,
		Nodes: map[string]NodeTopology{
			"a": {Level: 0, Neighbors: [][]string{{"ghost"}}},
		},
	}
	_, err := Import(3, testConfig(), vectors, snap)
	assert.ErrorIs(t, err, ErrInconsistentSnapshot)
}

func TestIndex_EdgesAreSymmetric(t *testing.T) {
	idx := New(2, testConfig())
	for i := 0; i < 60; i++ {
		id := fmt.Sprintf("v%02d", i)
		require.NoError(t, idx.Insert(id, []float32{float32(i%7) - 3, float32(i%13) - 6}))
	}

	// every edge (a -> b) at layer l must have its reverse (b -> a),
	// including after overflow trims during insertion.
	for id, n := range idx.nodes {
		for l, ns := range n.neighbors {
			for _, nbID := range ns {
				nb, ok := idx.nodes[nbID]
				require.True(t, ok, "edge %s -> %s at layer %d points at missing node", id, nbID, l)
				require.LessOrEqual(t, l, nb.level)
				assert.Contains(t, nb.neighbors[l], id, "edge %s -> %s at layer %d has no reverse", id, nbID, l)
			}
			assert.LessOrEqual(t, len(ns), idx.mmax(l))
		}
	}
}

func TestIndex_SameSeedSameOrderBuildsIdenticalGraphs(t *testing.T) {
	build := func() *Index {
		idx := New(2, testConfig())
		for i := 0; i < 50; i++ {
			id := fmt.Sprintf("v%02d", i)
			require.NoError(t, idx.Insert(id, []float32{float32(i%7) - 3, float32(i%11) - 5}))
		}
		return idx
	}

	a, b := build(), build()
	assert.Equal(t, a.Export(), b.Export())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 16, cfg.M)
	assert.Equal(t, 32, cfg.Mmax0())
}
