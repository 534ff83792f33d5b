package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutAndGet(t *testing.T) {
	store := NewStore(t.TempDir())

	v1, err := store.Put(KindFeature, "Feature: one")
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	v2, err := store.Put(KindFeature, "Feature: two")
	require.NoError(t, err)
	assert.Equal(t, 2, v2)

	content, err := store.Get(KindFeature, 1)
	require.NoError(t, err)
	assert.Equal(t, "Feature: one", content)

	content, err = store.Get(KindFeature, 2)
	require.NoError(t, err)
	assert.Equal(t, "Feature: two", content)
}

func TestStore_VersionsAreIndependentPerKind(t *testing.T) {
	store := NewStore(t.TempDir())

	v, err := store.Put(KindFeature, "Feature: f")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = store.Put(KindSteps, `{"steps":[]}`)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = store.Put(KindSteps, `{"steps":[{}]}`)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	features, err := store.Versions(KindFeature)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, features)

	steps, err := store.Versions(KindSteps)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, steps)
}

func TestStore_GetMissingVersion(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Get(KindFeature, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestStore_Latest(t *testing.T) {
	store := NewStore(t.TempDir())

	_, _, err := store.Latest(KindSteps)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionNotFound)

	_, err = store.Put(KindSteps, "first")
	require.NoError(t, err)
	_, err = store.Put(KindSteps, "second")
	require.NoError(t, err)

	version, content, err := store.Latest(KindSteps)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.Equal(t, "second", content)
}

func TestStore_PutNeverOverwrites(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Put(KindFeature, "original")
	require.NoError(t, err)
	_, err = store.Put(KindFeature, "patched")
	require.NoError(t, err)

	original, err := store.Get(KindFeature, 1)
	require.NoError(t, err)
	assert.Equal(t, "original", original)
}

func TestStore_UnknownKind(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Put(Kind("report"), "content")
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = store.Get(Kind("report"), 1)
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = store.Versions(Kind("report"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store := NewStore(dir)
	_, err := store.Put(KindFeature, "Feature: persisted")
	require.NoError(t, err)
	_, err = store.Put(KindFeature, "Feature: patched")
	require.NoError(t, err)

	reopened := NewStore(dir)
	version, content, err := reopened.Latest(KindFeature)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.Equal(t, "Feature: patched", content)

	next, err := reopened.Put(KindFeature, "Feature: third")
	require.NoError(t, err)
	assert.Equal(t, 3, next)
}

func TestStore_FileLayout(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	_, err := store.Put(KindFeature, "Feature: f")
	require.NoError(t, err)
	_, err = store.Put(KindSteps, `{"steps":[]}`)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "features", "v001.feature"))
	require.NoError(t, err)
	assert.Equal(t, "Feature: f", string(data))

	_, err = os.Stat(filepath.Join(dir, "steps", "v001.json"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "steps", "v001.json"), store.Path(KindSteps, 1))
}

func TestStore_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	_, err := store.Put(KindFeature, "Feature: f")
	require.NoError(t, err)

	featuresDir := filepath.Join(dir, "features")
	require.NoError(t, os.WriteFile(filepath.Join(featuresDir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(featuresDir, "vabc.feature"), []byte("x"), 0644))

	versions, err := store.Versions(KindFeature)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, versions)
}
