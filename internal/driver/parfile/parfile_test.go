package parfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarka/xcp-sub000/internal/config"
	"github.com/tarka/xcp-sub000/internal/driver"
	_ "github.com/tarka/xcp-sub000/internal/driver/parfile"
	"github.com/tarka/xcp-sub000/internal/feedback"
)

func TestParFileCopiesDirectoryTree(t *testing.T) {
	dir := t.TempDir()
	srcRoot := filepath.Join(dir, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(srcRoot, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "top.txt"), []byte("top"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "sub", "nested.txt"), []byte("nested"), 0o644))

	destRoot := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(destRoot, 0o755))

	cfg := config.Default()
	cfg.Recursive = true
	cfg.Driver = config.DriverParFile

	drv, err := driver.New(cfg)
	require.NoError(t, err)

	err = drv.CopyAll([]string{srcRoot}, destRoot, feedback.NoopUpdater{})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(destRoot, "tree", "top.txt"))
	require.NoError(t, err)
	assert.Equal(t, "top", string(got))

	got, err = os.ReadFile(filepath.Join(destRoot, "tree", "sub", "nested.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested", string(got))
}

func TestParFileCopiesSingleFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	dst := filepath.Join(dir, "dst.txt")

	cfg := config.Default()
	drv, err := driver.New(cfg)
	require.NoError(t, err)

	err = drv.CopyAll([]string{src}, dst, feedback.NoopUpdater{})
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}
