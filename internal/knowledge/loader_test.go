package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDirectory(t *testing.T) {
	t.Run("should create nested directories", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b")
		require.NoError(t, EnsureDirectory(dir))

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("should be a no-op for an existing directory", func(t *testing.T) {
		assert.NoError(t, EnsureDirectory(t.TempDir()))
	})

	t.Run("should reject an empty path", func(t *testing.T) {
		assert.Error(t, EnsureDirectory(""))
	})
}

func TestLoadDirectory(t *testing.T) {
	t.Run("should load regular files sorted by name", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("beta"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("skip"), 0644))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

		docs, err := LoadDirectory(dir)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "a.txt", docs[0].Name)
		assert.Equal(t, "alpha", docs[0].Content)
		assert.Equal(t, filepath.Join(dir, "b.md"), docs[1].Path)
		assert.Equal(t, []string{"alpha", "beta"}, Contents(docs))
	})

	t.Run("should return an empty list for an empty directory", func(t *testing.T) {
		docs, err := LoadDirectory(t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("should fail for a missing directory", func(t *testing.T) {
		_, err := LoadDirectory(filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
	})
}
