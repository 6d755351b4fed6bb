// Package xfs is the filesystem abstraction layer of spec.md §4.2: a single
// operation vocabulary backed by a Linux implementation (copy_file_range,
// FIEMAP, FICLONE, SEEK_HOLE/DATA, mknod) on linux and a portable
// read/write-loop implementation everywhere else. Callers only ever see
// the FS interface; the downgrade from a kernel-assisted path to a
// user-space one happens inside the implementation and is never visible
// to the driver or copy-handle layers above.
package xfs

import "os"

// Extent is a half-open logical byte range [Start, End) with a
// shared-storage flag (spec.md "Extent"). Invariant: Start < End; within a
// sequence returned by MapExtents, extents are non-overlapping and
// strictly increasing in Start.
type Extent struct {
	Start  uint64
	End    uint64
	Shared bool
}

// Len returns the extent's byte length.
func (e Extent) Len() uint64 { return e.End - e.Start }

// FS is the uniform contract presented to the copy handle and drivers
// (spec.md §4.2 table).
type FS interface {
	// CopyRange copies n bytes from in to out, advancing both descriptors'
	// kernel offsets (copy_file_range semantics), falling back to a
	// read/write loop when the kernel path is unavailable.
	CopyRange(in, out *os.File, n uint64) (uint64, error)

	// CopyRangeAt copies n bytes from in to out at explicit, independent
	// offsets without touching either descriptor's file position.
	CopyRangeAt(in, out *os.File, n uint64, off int64) (uint64, error)

	// ProbablySparse guesses whether a file is sparse by comparing its
	// allocated block count against its logical size (spec.md §9 "Sparse
	// detection heuristic"). False negatives are fine; the dense path
	// still copies correctly.
	ProbablySparse(f *os.File) (bool, error)

	// MapExtents returns the file's allocated-extent map, or ok=false if
	// the filesystem/platform doesn't support extent discovery.
	MapExtents(f *os.File) (extents []Extent, ok bool, err error)

	// NextDataHole returns the next [dataStart, holeStart) data segment at
	// or after pos, seeking both descriptors to dataStart. EOF is reported
	// by dataStart == holeStart == the file's length.
	NextDataHole(in, out *os.File, pos uint64) (dataStart, holeStart uint64, err error)

	// Reflink attempts a copy-on-write clone of in's extents into out.
	// Returns ok=false (not an error) when the filesystem/platform doesn't
	// support cloning, or the clone was rejected for a "not supported"
	// reason (EOPNOTSUPP/EINVAL/EXDEV/ETXTBSY or platform equivalent).
	Reflink(in, out *os.File) (ok bool, err error)

	// Allocate pre-allocates out's length to n so that sparse-aware
	// writers can skip holes without widening the file.
	Allocate(out *os.File, n uint64) error

	// CopyNode recreates a special file (socket, char device, FIFO) at
	// dst, mirroring src's mode and device number.
	CopyNode(src, dst string) error

	// Sync flushes a written file's data (and, where supported, metadata)
	// to stable storage.
	Sync(f *os.File) error
}

// Backend is the process-wide FS implementation, selected at build time
// between the Linux backend and the portable fallback.
var Backend FS = newBackend()
