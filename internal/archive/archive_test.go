package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "slides.zip")
	writeZip(t, src, map[string]string{"a.txt": "hello", "sub/b.txt": "world"})

	dest := filepath.Join(dir, "slides")
	require.NoError(t, Extract(src, dest))

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	got, err = os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))
}

func TestExtractRejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.zip")
	writeZip(t, src, map[string]string{"../escape.txt": "x"})

	err := Extract(src, filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrUnsafePath)
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}

func TestExtractUnsupported(t *testing.T) {
	err := Extract("notes.rar", t.TempDir())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestExtractCorrupt7z(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.7z")
	require.NoError(t, os.WriteFile(src, []byte("not an archive"), 0o644))
	assert.Error(t, Extract(src, filepath.Join(dir, "out")))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.ZIP"))
	assert.True(t, Supported("/x/b.7z"))
	assert.False(t, Supported("c.rar"))
	assert.False(t, Supported("d"))
}
