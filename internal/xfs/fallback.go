//go:build !linux

package xfs

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/tarka/xcp-sub000/internal/xcperr"
)

func newBackend() FS { return fallbackFS{} }

// fallbackFS is the portable backend for platforms without copy_file_range,
// FIEMAP, FICLONE or SEEK_DATA/HOLE support (spec.md §4.2 "Fallback
// backend" column). Every kernel-assisted operation degrades to its
// user-space equivalent; sparse and reflink detection always report
// "not supported" rather than guessing.
type fallbackFS struct{}

func (fallbackFS) CopyRange(in, out *os.File, n uint64) (uint64, error) {
	return copyBytesUspace(in, out, n)
}

func (fallbackFS) CopyRangeAt(in, out *os.File, n uint64, off int64) (uint64, error) {
	return copyRangeUspace(in, out, n, off)
}

func (fallbackFS) ProbablySparse(*os.File) (bool, error) {
	return false, nil
}

func (fallbackFS) MapExtents(*os.File) ([]Extent, bool, error) {
	return nil, false, nil
}

func (fallbackFS) NextDataHole(*os.File, *os.File, uint64) (uint64, uint64, error) {
	return 0, 0, xcperr.New(xcperr.KindUnsupportedOperation, "SEEK_DATA/SEEK_HOLE not supported on this platform")
}

func (fallbackFS) Reflink(*os.File, *os.File) (bool, error) {
	return false, nil
}

func (fallbackFS) Allocate(out *os.File, n uint64) error {
	if err := out.Truncate(int64(n)); err != nil {
		return xcperr.Wrap(xcperr.KindCopyError, "allocating destination length", err)
	}
	return nil
}

func (fallbackFS) CopyNode(src, dst string) error {
	logrus.WithFields(logrus.Fields{"from": src, "to": dst}).
		Warn("special file cloning not supported on this platform; skipping")
	return nil
}

func (fallbackFS) Sync(f *os.File) error {
	if err := f.Sync(); err != nil {
		return xcperr.Wrap(xcperr.KindCopyError, "fsync failed", err)
	}
	return nil
}
