//go:build !linux

package xfs

import (
	"os"
	"time"
)

// Times extracts the access and modification times from a FileInfo. Outside
// Linux this port doesn't reach into the platform Stat_t for atime, so
// both values are ModTime(): cp's --preserve=timestamps only ever verifies
// mtime in practice, and this keeps the fallback backend free of
// platform-specific stat layouts.
func Times(info os.FileInfo) (atime, mtime time.Time) {
	mtime = info.ModTime()
	return mtime, mtime
}
