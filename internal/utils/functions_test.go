package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileNameFromDisposition(t *testing.T) {
	assert.Equal(t, "report.pdf", FileNameFromDisposition(`attachment; filename="report.pdf"`))
	assert.Equal(t, "my file.zip", FileNameFromDisposition(`attachment; filename*=UTF-8''my%20file.zip`))
	assert.Equal(t, "passwd", FileNameFromDisposition(`attachment; filename="../../etc/passwd"`))
	assert.Equal(t, "a_b.txt", FileNameFromDisposition(`attachment; filename="a*b.txt"`))
	assert.Empty(t, FileNameFromDisposition(`attachment; filename=".."`))
	assert.Empty(t, FileNameFromDisposition(`attachment; filename="."`))
	assert.Empty(t, FileNameFromDisposition(`attachment; filename*=UTF-8''..`))
	assert.Empty(t, FileNameFromDisposition("inline"))
	assert.Empty(t, FileNameFromDisposition(""))
}

func TestFileNameFromURL(t *testing.T) {
	assert.Equal(t, "file.iso", FileNameFromURL("https://example.com/pub/file.iso?x=1"))
	assert.Equal(t, "download", FileNameFromURL("https://example.com/"))
	assert.Equal(t, "download", FileNameFromURL("https://example.com"))
	assert.Equal(t, "download", FileNameFromURL("http://example.com/a/.."))
	assert.Equal(t, "download", FileNameFromURL("http://example.com/a/."))
	assert.Equal(t, "download", FileNameFromURL("http://example.com/%2E%2E"))
}

func TestParseHeaderArgs(t *testing.T) {
	got := ParseHeaderArgs([]string{"Authorization: Basic abc", "bogus", "X-Key:v:w"})
	assert.Equal(t, map[string]string{"Authorization": "Basic abc", "X-Key": "v:w"}, got)
}

func TestStableTransferID(t *testing.T) {
	a := StableTransferID("https://example.com/a", "a.bin")
	assert.Equal(t, a, StableTransferID("https://example.com/a", "a.bin"))
	assert.NotEqual(t, a, StableTransferID("https://example.com/a", "b.bin"))
	assert.Contains(t, a, TempDirPrefix)
}

func TestRenewOutputPath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	assert.Equal(t, filepath.Join(dir, "file-(1).txt"), RenewOutputPath(p))
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	work := filepath.Join(dir, TempDirPrefix+"abc")
	require.NoError(t, os.MkdirAll(work, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(work, "0_0_10.temp"), []byte("x"), 0644))
	keep := filepath.Join(dir, "keep")
	require.NoError(t, os.MkdirAll(keep, 0755))

	removed, err := Clean(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, work)
	assert.DirExists(t, keep)

	removed, err = Clean(filepath.Join(dir, "missing"))
	assert.NoError(t, err)
	assert.Zero(t, removed)
}
