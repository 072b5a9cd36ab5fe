package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valorvie/uploadr2/config"
)

func testFileConfig() config.FileConfig {
	return config.FileConfig{
		SupportedFormats: []string{"jpg", "jpeg", "png", "gif", "webp"},
		MaxFileSizeMB:    1,
		ValidateFileType: true,
		HashAlgorithm:    "sha512",
	}
}

func TestIsSupportedFormat(t *testing.T) {
	formats := []string{"jpg", "png"}
	assert.True(t, IsSupportedFormat("photo.jpg", formats))
	assert.True(t, IsSupportedFormat("photo.PNG", formats))
	assert.False(t, IsSupportedFormat("doc.pdf", formats))
	assert.False(t, IsSupportedFormat("noext", formats))
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0644))

	assert.NoError(t, Validate(path, testFileConfig()))
}

func TestValidateRejectsMissingFile(t *testing.T) {
	err := Validate("/nonexistent/photo.jpg", testFileConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestValidateRejectsUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("pdf-bytes"), 0644))

	err := Validate(path, testFileConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file format")
}

func TestValidateRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.jpg")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 2*1024*1024)), 0644))

	err := Validate(path, testFileConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file too large")
}

func TestScanRecursiveAndSorted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	for _, name := range []string{"b.png", "a.jpg", "notes.txt", filepath.Join("sub", "c.gif")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("content"), 0644))
	}

	files, err := Scan(dir, testFileConfig())
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(dir, "a.jpg"), files[0])
	assert.Equal(t, filepath.Join(dir, "b.png"), files[1])
	assert.Equal(t, filepath.Join(dir, "sub", "c.gif"), files[2])
}

func TestScanMissingDir(t *testing.T) {
	files, err := Scan("/nonexistent/dir", testFileConfig())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	assert.Equal(t, path, UniquePath(path))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	assert.Equal(t, filepath.Join(dir, "photo_1.jpg"), UniquePath(path))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo_1.jpg"), []byte("x"), 0644))
	assert.Equal(t, filepath.Join(dir, "photo_2.jpg"), UniquePath(path))
}

func TestGuessMimeType(t *testing.T) {
	assert.Equal(t, "image/jpeg", GuessMimeType("photo.jpg"))
	assert.Equal(t, "image/png", GuessMimeType("photo.png"))
	assert.Equal(t, "application/octet-stream", GuessMimeType("unknown.zzz"))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	require.NoError(t, os.WriteFile(src, []byte("jpeg-bytes"), 0644))

	// 目标目录不存在时自动创建
	dst := filepath.Join(dir, "nested", "dst.jpg")
	require.NoError(t, CopyFile(src, dst))

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(content))
}

func TestCleanupDirKeepsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "keep"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep", "b.jpg"), []byte("x"), 0644))

	require.NoError(t, CleanupDir(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDir())
}

func TestCleanupDirMissing(t *testing.T) {
	assert.NoError(t, CleanupDir("/nonexistent/dir"))
}
