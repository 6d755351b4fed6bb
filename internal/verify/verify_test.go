package verify_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarka/xcp-sub000/internal/verify"
)

func TestFilesMatchingContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("identical content"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("identical content"), 0o644))

	ok, err := verify.Files(a, b)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFilesDifferingContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("two"), 0o644))

	ok, err := verify.Files(a, b)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFilesMissingSource(t *testing.T) {
	dir := t.TempDir()
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(b, []byte("x"), 0o644))

	_, err := verify.Files(filepath.Join(dir, "missing.txt"), b)
	assert.Error(t, err)
}
