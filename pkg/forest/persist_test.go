package forest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	vecs := randomVectors(120, 10, 9)
	idx, err := Build(vecs, 5, Options{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "index", "ann")
	require.NoError(t, idx.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.Dim(), loaded.Dim())
	assert.Equal(t, idx.NumTrees(), loaded.NumTrees())

	// Loaded index must answer identically to the in-memory one.
	for _, q := range randomVectors(5, 10, 17) {
		want, err := idx.Query(q, 8)
		require.NoError(t, err)
		got, err := loaded.Query(q, 8)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSaveUnbuiltFails(t *testing.T) {
	var idx Index
	err := idx.Save(filepath.Join(t.TempDir(), "ann"))
	require.ErrorIs(t, err, ErrNotBuilt)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, ErrCorruptIndexState)
}

func TestLoadGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ann")
	require.NoError(t, os.WriteFile(path, []byte("not msgpack at all"), 0644))
	_, err := Load(path)
	require.ErrorIs(t, err, ErrCorruptIndexState)
}

func TestIDMapRoundTrip(t *testing.T) {
	m := NewIDMap([]string{"p-a", "p-b", "p-c"}, 6)
	path := filepath.Join(t.TempDir(), "idmap")
	require.NoError(t, m.Save(path))

	loaded, err := LoadIDMap(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Len())
	assert.Equal(t, 6, loaded.Dim())
	for i, want := range []string{"p-a", "p-b", "p-c"} {
		got, ok := loaded.Resolve(i)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := loaded.Resolve(3)
	assert.False(t, ok)
	_, ok = loaded.Resolve(-1)
	assert.False(t, ok)
}

func TestLoadPair(t *testing.T) {
	vecs := randomVectors(10, 4, 13)
	idx, err := Build(vecs, 2, Options{})
	require.NoError(t, err)

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "ann")
	idMapPath := filepath.Join(dir, "idmap")
	require.NoError(t, idx.Save(indexPath))

	ids := []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}
	require.NoError(t, NewIDMap(ids, idx.Dim()).Save(idMapPath))

	gotIdx, gotMap, err := LoadPair(indexPath, idMapPath)
	require.NoError(t, err)
	assert.Equal(t, 10, gotIdx.Len())
	assert.Equal(t, 10, gotMap.Len())
}

func TestLoadPairMissingSidecar(t *testing.T) {
	vecs := randomVectors(4, 3, 2)
	idx, err := Build(vecs, 2, Options{})
	require.NoError(t, err)

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "ann")
	require.NoError(t, idx.Save(indexPath))

	_, _, err = LoadPair(indexPath, filepath.Join(dir, "idmap"))
	require.ErrorIs(t, err, ErrCorruptIndexState)
}

func TestLoadPairCountMismatch(t *testing.T) {
	vecs := randomVectors(4, 3, 2)
	idx, err := Build(vecs, 2, Options{})
	require.NoError(t, err)

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "ann")
	idMapPath := filepath.Join(dir, "idmap")
	require.NoError(t, idx.Save(indexPath))
	require.NoError(t, NewIDMap([]string{"a", "b"}, idx.Dim()).Save(idMapPath))

	_, _, err = LoadPair(indexPath, idMapPath)
	require.ErrorIs(t, err, ErrCorruptIndexState)
}

func TestLoadPairDimMismatch(t *testing.T) {
	vecs := randomVectors(3, 3, 2)
	idx, err := Build(vecs, 2, Options{})
	require.NoError(t, err)

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "ann")
	idMapPath := filepath.Join(dir, "idmap")
	require.NoError(t, idx.Save(indexPath))
	require.NoError(t, NewIDMap([]string{"a", "b", "c"}, 99).Save(idMapPath))

	_, _, err = LoadPair(indexPath, idMapPath)
	require.ErrorIs(t, err, ErrCorruptIndexState)
}
