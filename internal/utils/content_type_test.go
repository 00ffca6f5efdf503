package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTextFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0o644))
		return p
	}

	assert.True(t, IsTextFile(write("notes.MD", []byte("# title"))))
	assert.True(t, IsTextFile(write("README", []byte("plain words\n"))))
	assert.False(t, IsTextFile(write("image.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))))
	assert.False(t, IsTextFile(filepath.Join(dir, "missing.bin")))
}

func TestDetectContentType(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "lecture.md")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	assert.Equal(t, ContentTypeText, DetectContentType(p))

	pdf := filepath.Join(dir, "slides")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"), 0o644))
	assert.Equal(t, "application/pdf", DetectContentType(pdf))

	assert.Equal(t, ContentTypeBinary, DetectContentType(filepath.Join(dir, "nope")))
}
