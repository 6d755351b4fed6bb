package xfs

import (
	"errors"
	"io"
	"os"

	"github.com/tarka/xcp-sub000/internal/xcperr"
)

// MergeExtents coalesces adjacent extents where curr.Start == prev.End,
// preserving order and total coverage (spec.md §4.2 "Extent merging",
// §8 property 4). The Rust original merges on curr.start == prev.end + 1,
// which is correct for its inclusive-end ranges; this port uses half-open
// ranges throughout, so the contiguity test is curr.Start == prev.End.
func MergeExtents(extents []Extent) []Extent {
	if len(extents) == 0 {
		return nil
	}
	merged := make([]Extent, 0, len(extents))
	prev := extents[0]
	for _, e := range extents[1:] {
		if e.Start == prev.End {
			prev.End = e.End
			prev.Shared = prev.Shared || e.Shared
			continue
		}
		merged = append(merged, prev)
		prev = e
	}
	merged = append(merged, prev)
	return merged
}

// IsSameFile compares (device, inode) to detect a self-copy, used to
// reject copying a directory (or file) onto itself (spec.md §4.7).
func IsSameFile(a, b string) (bool, error) {
	sa, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(sa, sb), nil
}

// copyBytesUspace is the portable read/write-loop fallback for CopyRange,
// shared by both backends when the kernel-assisted path is unavailable.
func copyBytesUspace(in, out *os.File, n uint64) (uint64, error) {
	var written uint64
	buf := make([]byte, copyBufSize(n))
	for written < n {
		toRead := n - written
		if uint64(len(buf)) < toRead {
			toRead = uint64(len(buf))
		}
		rn, rerr := in.Read(buf[:toRead])
		if rn > 0 {
			wn, werr := out.Write(buf[:rn])
			written += uint64(wn)
			if werr != nil {
				return written, xcperr.Wrap(xcperr.KindCopyError, "write failed", werr)
			}
			if wn < rn {
				return written, xcperr.New(xcperr.KindCopyError, "short write")
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, xcperr.New(xcperr.KindInvalidSource, "source file ended prematurely")
			}
			return written, xcperr.Wrap(xcperr.KindCopyError, "read failed", rerr)
		}
	}
	return written, nil
}

// copyRangeUspace is the portable pread/pwrite-loop fallback for
// CopyRangeAt.
func copyRangeUspace(in, out *os.File, n uint64, off int64) (uint64, error) {
	var written uint64
	buf := make([]byte, copyBufSize(n))
	for written < n {
		toRead := n - written
		if uint64(len(buf)) < toRead {
			toRead = uint64(len(buf))
		}
		noff := off + int64(written)
		rn, rerr := in.ReadAt(buf[:toRead], noff)
		if rn > 0 {
			wn, werr := out.WriteAt(buf[:rn], noff)
			written += uint64(wn)
			if werr != nil {
				return written, xcperr.Wrap(xcperr.KindCopyError, "write failed", werr)
			}
			if wn < rn {
				return written, xcperr.New(xcperr.KindCopyError, "short write")
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				if written > 0 {
					return written, nil
				}
				return written, xcperr.New(xcperr.KindInvalidSource, "source file ended prematurely")
			}
			return written, xcperr.Wrap(xcperr.KindCopyError, "read failed", rerr)
		}
	}
	return written, nil
}

// copyBufSize caps the per-call buffer so a single huge block doesn't
// force one giant allocation; the driver is expected to call in
// block_size-sized chunks anyway.
func copyBufSize(n uint64) int {
	const maxBuf = 4 << 20
	if n > maxBuf {
		return maxBuf
	}
	if n == 0 {
		return 1
	}
	return int(n)
}
