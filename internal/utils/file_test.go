package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "note.md")

	require.NoError(t, WriteFileAtomic(p, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(p, []byte("two"), 0o644))

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestIsTempFile(t *testing.T) {
	dir := t.TempDir()
	tmp, err := os.CreateTemp(dir, ".note.md.*"+tempFileSuffix)
	require.NoError(t, err)
	tmp.Close()

	assert.True(t, IsTempFile(tmp.Name()))
	assert.False(t, IsTempFile(filepath.Join(dir, "note.md")))
	assert.False(t, IsTempFile(filepath.Join(dir, "draft.tmp")))
	assert.False(t, IsTempFile(filepath.Join(dir, ".env")))
}
