//go:build linux

package xfs

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tarka/xcp-sub000/internal/xcperr"
)

func newBackend() FS { return linuxFS{} }

type linuxFS struct{}

// Downgrade latches (spec.md §9 "Downgrade flags"): once copy_file_range,
// FICLONE or FIEMAP is observed unsupported on this process, skip the
// syscall attempt on every subsequent call rather than paying for one
// doomed syscall per file.
var (
	copyFileRangeUnsupported atomic.Bool
	reflinkUnsupported       atomic.Bool
	fiemapUnsupported        atomic.Bool
)

// isCopyRangeDowngrade and isReflinkDowngrade report whether an errno from
// copy_file_range or FICLONE respectively indicates "not supported here" rather than a real failure, matching the
// Rust original's match on Errno::{NOSYS,PERM,XDEV} / EOPNOTSUPP|EINVAL|
// EXDEV|ETXTBSY.
func isCopyRangeDowngrade(err error) bool {
	return errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.EXDEV)
}

func isReflinkDowngrade(err error) bool {
	return errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.EINVAL) ||
		errors.Is(err, unix.EXDEV) || errors.Is(err, unix.ETXTBSY)
}

func (linuxFS) CopyRange(in, out *os.File, n uint64) (uint64, error) {
	if !copyFileRangeUnsupported.Load() {
		written, err := copyFileRangeFull(in, out, nil, nil, n)
		if err == nil {
			return written, nil
		}
		if isCopyRangeDowngrade(err) {
			copyFileRangeUnsupported.Store(true)
		} else {
			return written, xcperr.Wrap(xcperr.KindCopyError, "copy_file_range failed", err)
		}
	}
	return copyBytesUspace(in, out, n)
}

func (linuxFS) CopyRangeAt(in, out *os.File, n uint64, off int64) (uint64, error) {
	if !copyFileRangeUnsupported.Load() {
		inOff, outOff := off, off
		written, err := copyFileRangeFull(in, out, &inOff, &outOff, n)
		if err == nil {
			return written, nil
		}
		if isCopyRangeDowngrade(err) {
			copyFileRangeUnsupported.Store(true)
		} else {
			return written, xcperr.Wrap(xcperr.KindCopyError, "copy_file_range failed", err)
		}
	}
	return copyRangeUspace(in, out, n, off)
}

// copyFileRangeFull loops copy_file_range since a single call may transfer
// less than requested (e.g. across a hole or at EOF).
func copyFileRangeFull(in, out *os.File, inOff, outOff *int64, n uint64) (uint64, error) {
	var written uint64
	for written < n {
		remain := int(n - written)
		cn, err := unix.CopyFileRange(int(in.Fd()), inOff, int(out.Fd()), outOff, remain, 0)
		if err != nil {
			return written, err
		}
		if cn == 0 {
			break
		}
		written += uint64(cn)
	}
	return written, nil
}

func (linuxFS) ProbablySparse(f *os.File) (bool, error) {
	fi, err := f.Stat()
	if err != nil {
		return false, err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false, nil
	}
	const stBlockSize = 512
	return uint64(st.Blocks)*stBlockSize < uint64(fi.Size()), nil
}

// fiemapPageSize mirrors FIEMAP_PAGE_SIZE in libfs/src/linux.rs: one ioctl
// round-trip returns at most this many extents.
const fiemapPageSize = 32

const (
	fsIocFiemap        = 0xC020660B
	fiemapExtentLast   = 0x00000001
	fiemapExtentShared = 0x00002000
)

type fiemapExtent struct {
	Logical    uint64
	Physical   uint64
	Length     uint64
	Reserved64 [2]uint64
	Flags      uint32
	Reserved   [3]uint32
}

type fiemapReq struct {
	Start         uint64
	Length        uint64
	Flags         uint32
	MappedExtents uint32
	ExtentCount   uint32
	Reserved      uint32
	Extents       [fiemapPageSize]fiemapExtent
}

func newFiemapReq() fiemapReq {
	return fiemapReq{Length: ^uint64(0), ExtentCount: fiemapPageSize}
}

// fiemapIoctl issues one FS_IOC_FIEMAP round-trip. ok=false means the
// filesystem doesn't support FIEMAP (EOPNOTSUPP).
func fiemapIoctl(fd uintptr, req *fiemapReq) (ok bool, err error) {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(fsIocFiemap), uintptr(unsafe.Pointer(req)))
	if errno != 0 {
		if errno == unix.EOPNOTSUPP {
			return false, nil
		}
		return false, errno
	}
	return true, nil
}

func (linuxFS) MapExtents(f *os.File) ([]Extent, bool, error) {
	if fiemapUnsupported.Load() {
		return nil, false, nil
	}
	var extents []Extent
	req := newFiemapReq()

	for {
		ok, err := fiemapIoctl(f.Fd(), &req)
		if err != nil {
			return nil, false, xcperr.Wrap(xcperr.KindCopyError, "FIEMAP ioctl failed", err)
		}
		if !ok {
			fiemapUnsupported.Store(true)
			return nil, false, nil
		}
		if req.MappedExtents == 0 {
			break
		}
		for i := uint32(0); i < req.MappedExtents; i++ {
			e := req.Extents[i]
			extents = append(extents, Extent{
				Start:  e.Logical,
				End:    e.Logical + e.Length,
				Shared: e.Flags&fiemapExtentShared != 0,
			})
		}
		last := req.Extents[req.MappedExtents-1]
		if last.Flags&fiemapExtentLast != 0 {
			break
		}
		req.Start = last.Logical + last.Length
		req.MappedExtents = 0
	}
	return extents, true, nil
}

// seekOff mirrors libfs::linux::SeekOff: an lseek(SEEK_DATA|SEEK_HOLE) call
// either returns an offset or ENXIO, which means EOF.
func seekOff(fd uintptr, off int64, whence int) (offset int64, atEOF bool, err error) {
	r, err := unix.Seek(int(fd), off, whence)
	if err != nil {
		if errors.Is(err, unix.ENXIO) {
			return 0, true, nil
		}
		return 0, false, err
	}
	return r, false, nil
}

func (linuxFS) NextDataHole(in, out *os.File, pos uint64) (uint64, uint64, error) {
	size, err := fileSize(in)
	if err != nil {
		return 0, 0, err
	}

	dataOff, dataEOF, err := seekOff(in.Fd(), int64(pos), unix.SEEK_DATA)
	if err != nil {
		return 0, 0, xcperr.Wrap(xcperr.KindCopyError, "SEEK_DATA failed", err)
	}
	nextData := size
	if !dataEOF {
		nextData = uint64(dataOff)
	}

	holeOff, holeEOF, err := seekOff(in.Fd(), int64(nextData), unix.SEEK_HOLE)
	if err != nil {
		return 0, 0, xcperr.Wrap(xcperr.KindCopyError, "SEEK_HOLE failed", err)
	}
	nextHole := size
	if !holeEOF {
		nextHole = uint64(holeOff)
	}
	if nextHole > size {
		nextHole = size
	}

	if _, err := in.Seek(int64(nextData), io.SeekStart); err != nil {
		return 0, 0, xcperr.Wrap(xcperr.KindCopyError, "seeking source to data extent", err)
	}
	if _, err := out.Seek(int64(nextData), io.SeekStart); err != nil {
		return 0, 0, xcperr.Wrap(xcperr.KindCopyError, "seeking destination to data extent", err)
	}
	return nextData, nextHole, nil
}

func fileSize(f *os.File) (uint64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()), nil
}

func (linuxFS) Reflink(in, out *os.File) (bool, error) {
	if reflinkUnsupported.Load() {
		return false, nil
	}
	err := unix.IoctlFileClone(int(out.Fd()), int(in.Fd()))
	if err == nil {
		return true, nil
	}
	if isReflinkDowngrade(err) {
		reflinkUnsupported.Store(true)
		return false, nil
	}
	return false, xcperr.Wrap(xcperr.KindCopyError, "FICLONE failed", err)
}

func (linuxFS) Allocate(out *os.File, n uint64) error {
	if err := out.Truncate(int64(n)); err != nil {
		return xcperr.Wrap(xcperr.KindCopyError, "allocating destination length", err)
	}
	return nil
}

func (linuxFS) CopyNode(src, dst string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return xcperr.Wrap(xcperr.KindInvalidSource, "stat special file", err).WithPath(src)
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return xcperr.New(xcperr.KindUnknownFileType, "cannot determine device for special file").WithPath(src)
	}
	mode := uint32(fi.Mode().Perm())
	switch {
	case fi.Mode()&os.ModeSocket != 0:
		mode |= unix.S_IFSOCK
	case fi.Mode()&os.ModeDevice != 0 && fi.Mode()&os.ModeCharDevice != 0:
		mode |= unix.S_IFCHR
	case fi.Mode()&os.ModeDevice != 0:
		mode |= unix.S_IFBLK
	case fi.Mode()&os.ModeNamedPipe != 0:
		mode |= unix.S_IFIFO
	default:
		return xcperr.New(xcperr.KindUnknownFileType, "not a special file").WithPath(src)
	}
	if err := unix.Mknodat(unix.AT_FDCWD, dst, mode, int(st.Rdev)); err != nil {
		return xcperr.Wrap(xcperr.KindCopyError, "mknodat failed", err).WithPath(dst)
	}
	return nil
}

func (linuxFS) Sync(f *os.File) error {
	if err := unix.Fdatasync(int(f.Fd())); err != nil {
		return xcperr.Wrap(xcperr.KindCopyError, "fdatasync failed", err)
	}
	return nil
}
