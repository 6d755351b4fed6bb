package xfs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarka/xcp-sub000/internal/xfs"
)

func TestMergeExtentsCoalescesAdjacent(t *testing.T) {
	in := []xfs.Extent{
		{Start: 0, End: 10},
		{Start: 10, End: 20},
		{Start: 30, End: 40},
	}
	got := xfs.MergeExtents(in)
	want := []xfs.Extent{
		{Start: 0, End: 20},
		{Start: 30, End: 40},
	}
	assert.Equal(t, want, got)
}

func TestMergeExtentsIdempotent(t *testing.T) {
	in := []xfs.Extent{
		{Start: 0, End: 4096},
		{Start: 4096, End: 8192},
		{Start: 9000, End: 9100},
		{Start: 9100, End: 9200},
	}
	once := xfs.MergeExtents(in)
	twice := xfs.MergeExtents(once)
	assert.Equal(t, once, twice)
}

func TestMergeExtentsPreservesSharedFlag(t *testing.T) {
	in := []xfs.Extent{
		{Start: 0, End: 10, Shared: false},
		{Start: 10, End: 20, Shared: true},
	}
	got := xfs.MergeExtents(in)
	require.Len(t, got, 1)
	assert.True(t, got[0].Shared)
}

func TestMergeExtentsEmpty(t *testing.T) {
	assert.Nil(t, xfs.MergeExtents(nil))
}

func TestExtentLen(t *testing.T) {
	e := xfs.Extent{Start: 10, End: 25}
	assert.Equal(t, uint64(15), e.Len())
}

func TestIsSameFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("x"), 0o644))

	same, err := xfs.IsSameFile(a, a)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = xfs.IsSameFile(a, b)
	require.NoError(t, err)
	assert.False(t, same)
}
