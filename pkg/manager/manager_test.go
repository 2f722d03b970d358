package manager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torinriley/vecstream/pkg/hnsw"
)

func testConfig() hnsw.Config {
	return hnsw.Config{M: 8, EfConstruction: 64, EfSearch: 32, Seed: 3}
}

func TestManager_CreateAndGetCollection(t *testing.T) {
	m, err := New(t.TempDir(), testConfig())
	require.NoError(t, err)

	c, err := m.CreateCollection("docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", c.Name())

	got, err := m.GetCollection("docs")
	require.NoError(t, err)
	assert.Same(t, c, got)
}

func TestManager_CreateCollectionRejectsInvalidName(t *testing.T) {
	m, err := New(t.TempDir(), testConfig())
	require.NoError(t, err)

	_, err = m.CreateCollection("has a space")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestManager_CreateCollectionRejectsDuplicate(t *testing.T) {
	m, err := New(t.TempDir(), testConfig())
	require.NoError(t, err)

	_, err = m.CreateCollection("docs")
	require.NoError(t, err)

	_, err = m.CreateCollection("docs")
	assert.ErrorIs(t, err, ErrCollectionExists)
}

func TestManager_GetCollectionMissing(t *testing.T) {
	m, err := New(t.TempDir(), testConfig())
	require.NoError(t, err)

	_, err = m.GetCollection("missing")
	assert.ErrorIs(t, err, ErrNoSuchCollection)
}

func TestManager_ListCollectionsIsAlphabetical(t *testing.T) {
	m, err := New(t.TempDir(), testConfig())
	require.NoError(t, err)

	_, err = m.CreateCollection("zeta")
	require.NoError(t, err)
	_, err = m.CreateCollection("alpha")
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "zeta"}, m.ListCollections())
}

func TestManager_DeleteCollection(t *testing.T) {
	m, err := New(t.TempDir(), testConfig())
	require.NoError(t, err)

	_, err = m.CreateCollection("docs")
	require.NoError(t, err)

	require.NoError(t, m.DeleteCollection("docs"))
	_, err = m.GetCollection("docs")
	assert.ErrorIs(t, err, ErrNoSuchCollection)

	err = m.DeleteCollection("docs")
	assert.ErrorIs(t, err, ErrNoSuchCollection)
}

func TestManager_SaveAllAndReload(t *testing.T) {
	base := t.TempDir()

	m, err := New(base, testConfig())
	require.NoError(t, err)

	c, err := m.CreateCollection("docs")
	require.NoError(t, err)
	require.NoError(t, c.AddVector("a", []float32{1, 0, 0}, nil))

	require.NoError(t, m.SaveAll())

	m2, err := New(base, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, m2.ListCollections())

	reloaded, err := m2.GetCollection("docs")
	require.NoError(t, err)
	vec, err := reloaded.GetVector("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)
}

func TestManager_SetRebuildThresholdAppliesToNewCollections(t *testing.T) {
	m, err := New(t.TempDir(), testConfig())
	require.NoError(t, err)
	m.SetRebuildThreshold(0.6)

	c, err := m.CreateCollection("docs")
	require.NoError(t, err)
	assert.Equal(t, 0.6, c.Stats().RebuildThreshold)
}

func TestManager_NewCreatesBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "collections")
	_, err := New(base, testConfig())
	require.NoError(t, err)
}
