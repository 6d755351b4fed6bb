package walk_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarka/xcp-sub000/internal/config"
	"github.com/tarka/xcp-sub000/internal/feedback"
	"github.com/tarka/xcp-sub000/internal/walk"
	"github.com/tarka/xcp-sub000/internal/xcperr"
)

func collect(t *testing.T, sources []string, dest string, cfg *config.Config) ([]walk.Operation, error) {
	t.Helper()
	ops := make(chan walk.Operation)
	var collected []walk.Operation
	done := make(chan struct{})
	go func() {
		defer close(done)
		for op := range ops {
			collected = append(collected, op)
		}
	}()
	err := walk.Walk(sources, dest, cfg, ops, feedback.NoopUpdater{})
	<-done
	return collected, err
}

func TestWalkSingleFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	dest := filepath.Join(dir, "dst.txt")

	ops, err := collect(t, []string{src}, dest, &config.Config{})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, walk.OpCopy, ops[0].Kind)
	assert.Equal(t, src, ops[0].From)
	assert.Equal(t, dest, ops[0].To)
}

func TestWalkDirectoryTreeCreatesDirsAheadOfChildren(t *testing.T) {
	dir := t.TempDir()
	srcRoot := filepath.Join(dir, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(srcRoot, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "top.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "sub", "nested.txt"), []byte("b"), 0o644))

	destRoot := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(destRoot, 0o755))

	ops, err := collect(t, []string{srcRoot}, destRoot, &config.Config{Recursive: true})
	require.NoError(t, err)
	require.Len(t, ops, 2)

	// The nested subdirectory must already exist by the time its child is
	// emitted — the walker creates directories synchronously.
	assert.DirExists(t, filepath.Join(destRoot, "tree", "sub"))
}

func TestWalkNoClobberRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	dest := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

	_, err := collect(t, []string{src}, dest, &config.Config{NoClobber: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, xcperr.Sentinel(xcperr.KindDestinationExists))

	content, readErr := os.ReadFile(dest)
	require.NoError(t, readErr)
	assert.Equal(t, "old", string(content))
}

func TestWalkGitignoreSkipsMatchedEntries(t *testing.T) {
	dir := t.TempDir()
	srcRoot := filepath.Join(dir, "tree")
	require.NoError(t, os.MkdirAll(srcRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, ".gitignore"), []byte("ignored.txt\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "kept.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "ignored.txt"), []byte("b"), 0o644))

	destRoot := filepath.Join(dir, "out")
	ops, err := collect(t, []string{srcRoot}, destRoot, &config.Config{Recursive: true, Gitignore: true})
	require.NoError(t, err)

	var names []string
	for _, op := range ops {
		names = append(names, filepath.Base(op.From))
	}
	assert.Contains(t, names, "kept.txt")
	assert.NotContains(t, names, "ignored.txt")
}

func TestValidateDestinationRejectsMultiSourceOntoFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))
	destFile := filepath.Join(dir, "dest.txt")
	require.NoError(t, os.WriteFile(destFile, []byte("d"), 0o644))

	err := walk.ValidateDestination([]string{a, b}, destFile, &config.Config{})
	assert.Error(t, err)
}

func TestValidateDestinationRejectsDirectoryWithoutRecursive(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "srcdir")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	dest := filepath.Join(dir, "out")

	err := walk.ValidateDestination([]string{srcDir}, dest, &config.Config{Recursive: false})
	assert.Error(t, err)
}

func TestValidateDestinationRejectsSelfCopy(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "srcdir")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))

	err := walk.ValidateDestination([]string{srcDir}, srcDir, &config.Config{Recursive: true})
	assert.Error(t, err)
}
