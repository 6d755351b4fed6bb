//go:build linux

package parblock_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarka/xcp-sub000/internal/config"
	"github.com/tarka/xcp-sub000/internal/driver"
	_ "github.com/tarka/xcp-sub000/internal/driver/parblock"
	"github.com/tarka/xcp-sub000/internal/feedback"
)

func TestParBlockCopiesLargeFileAcrossMultipleBlocks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	payload := bytes.Repeat([]byte("abcdefgh"), 1<<17) // 1MiB
	require.NoError(t, os.WriteFile(src, payload, 0o644))
	dst := filepath.Join(dir, "dst.bin")

	cfg := config.Default()
	cfg.Driver = config.DriverParBlock
	cfg.BlockSize = 64 * 1024

	drv, err := driver.New(cfg)
	require.NoError(t, err)

	err = drv.CopyAll([]string{src}, dst, feedback.NoopUpdater{})
	require.NoError(t, err)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestParBlockCopiesDirectoryTree(t *testing.T) {
	dir := t.TempDir()
	srcRoot := filepath.Join(dir, "tree")
	require.NoError(t, os.MkdirAll(srcRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "b.txt"), []byte("b"), 0o644))

	destRoot := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(destRoot, 0o755))

	cfg := config.Default()
	cfg.Recursive = true
	cfg.Driver = config.DriverParBlock

	drv, err := driver.New(cfg)
	require.NoError(t, err)

	err = drv.CopyAll([]string{srcRoot}, destRoot, feedback.NoopUpdater{})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(destRoot, "tree", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))
}
