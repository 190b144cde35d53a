package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorePutObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewLocalStore(tempDir)
	require.NoError(t, err)

	t.Run("ValidPut", func(t *testing.T) {
		uri, err := store.PutObject(context.Background(), "task-1/1.html", "text/html", []byte("<html></html>"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, "task-1/1.html"), uri)

		data, err := os.ReadFile(filepath.Join(tempDir, "task-1/1.html"))
		require.NoError(t, err)
		assert.Equal(t, []byte("<html></html>"), data)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "text/html", []byte("x"))
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.html", "text/html", []byte("x"))
		assert.Error(t, err)
	})
}

func TestNewLocalStoreRejectsFilePath(t *testing.T) {
	tempFile, err := os.CreateTemp(t.TempDir(), "notadir")
	require.NoError(t, err)
	require.NoError(t, tempFile.Close())

	_, err = NewLocalStore(tempFile.Name())
	assert.Error(t, err)
}

func TestMemoryStorePutObject(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	uri, err := store.PutObject(context.Background(), "task-1/1.html", "text/html", []byte("body"))
	require.NoError(t, err)
	assert.Equal(t, "mem://task-1/1.html", uri)

	data, ok := store.GetObject("task-1/1.html")
	require.True(t, ok)
	assert.Equal(t, []byte("body"), data)
	assert.Equal(t, 1, store.Len())

	_, ok = store.GetObject("missing")
	assert.False(t, ok)
}
