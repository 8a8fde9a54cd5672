package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-batchdet/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000010.JPEG", "000002.JPEG", "000001.JPEG", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.JPEG"), 0o755))

	files, err := ListImageFiles(filepath.Join(dir, "*"))
	require.NoError(t, err)

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"000001.JPEG", "000002.JPEG", "000010.JPEG"}, names)
	assert.Equal(t, filepath.Join(dir, "000001.JPEG"), files[0].Path)
}

func TestListImageFiles_NoMatches(t *testing.T) {
	files, err := ListImageFiles(filepath.Join(t.TempDir(), "*.png"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestListImageFiles_BadPattern(t *testing.T) {
	_, err := ListImageFiles("[")
	assert.True(t, errdefs.IsInvalidConfig(err))
}

func TestListImageFiles_DuplicateBaseNames(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"a", "b"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, sub), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, sub, "000001.jpg"), []byte("x"), 0o600))
	}

	_, err := ListImageFiles(filepath.Join(dir, "*", "*.jpg"))
	assert.True(t, errdefs.IsInvalidConfig(err), "got %v", err)

	files, err := ListImageFiles(filepath.Join(dir, "a", "*.jpg"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}
