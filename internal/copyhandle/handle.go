// Package copyhandle implements the per-file copy pipeline of spec.md
// §4.1: reflink attempt, then sparse-aware or dense copy, then
// finalization (xattrs, permissions, timestamps, optional fsync).
package copyhandle

import (
	"os"

	"github.com/google/uuid"
	"github.com/pkg/xattr"
	"github.com/sirupsen/logrus"

	"github.com/tarka/xcp-sub000/internal/backup"
	"github.com/tarka/xcp-sub000/internal/config"
	"github.com/tarka/xcp-sub000/internal/feedback"
	"github.com/tarka/xcp-sub000/internal/xcperr"
	"github.com/tarka/xcp-sub000/internal/xfs"
)

// Handle owns one file copy's source/destination descriptors and source
// metadata snapshot (spec.md "Copy Handle"). Created by New after any
// backup rename and destination pre-allocation; the caller must call
// Close once the copy is done (successfully or not) to run finalization.
type Handle struct {
	From, To string
	In, Out  *os.File
	Info     os.FileInfo
	Config   *config.Config
	OpID     uuid.UUID
}

// New opens from for reading and to for writing, renaming an existing to
// aside first if the backup policy requires it, then pre-allocates to's
// length to from's size (spec.md §4.1 "Creation sequence").
func New(from, to string, cfg *config.Config) (*Handle, error) {
	needsBackup, err := backup.NeedsBackup(to, cfg.Backup)
	if err != nil {
		return nil, xcperr.Wrap(xcperr.KindCopyError, "checking backup policy", err).WithPath(to)
	}
	if needsBackup {
		bpath, err := backup.GetBackupPath(to)
		if err != nil {
			return nil, xcperr.Wrap(xcperr.KindCopyError, "computing backup path", err).WithPath(to)
		}
		logrus.WithFields(logrus.Fields{"from": to, "to": bpath}).Info("backup: renaming existing destination")
		if err := os.Rename(to, bpath); err != nil {
			return nil, xcperr.Wrap(xcperr.KindCopyError, "renaming backup", err).WithPath(to)
		}
	}

	in, err := os.Open(from)
	if err != nil {
		return nil, xcperr.Wrap(xcperr.KindInvalidSource, "opening source", err).WithPath(from)
	}
	info, err := in.Stat()
	if err != nil {
		in.Close()
		return nil, xcperr.Wrap(xcperr.KindInvalidSource, "statting source", err).WithPath(from)
	}

	out, err := os.Create(to)
	if err != nil {
		in.Close()
		return nil, xcperr.Wrap(xcperr.KindInvalidDestination, "creating destination", err).WithPath(to)
	}
	if err := xfs.Backend.Allocate(out, uint64(info.Size())); err != nil {
		in.Close()
		out.Close()
		return nil, err
	}

	return &Handle{
		From:   from,
		To:     to,
		In:     in,
		Out:    out,
		Info:   info,
		Config: cfg,
		OpID:   uuid.New(),
	}, nil
}

// TryReflink attempts a copy-offload clone according to the configured
// reflink policy (spec.md §4.1 step 1).
func (h *Handle) TryReflink() (bool, error) {
	switch h.Config.Reflink {
	case config.ReflinkNever:
		return false, nil
	default:
		ok, err := xfs.Backend.Reflink(h.In, h.Out)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if h.Config.Reflink == config.ReflinkAlways {
			return false, xcperr.New(xcperr.KindReflinkFailed, h.From+"->"+h.To)
		}
		return false, nil
	}
}

// CopyFile runs the full per-file pipeline: reflink, then sparse-aware or
// dense copy, streaming byte-count updates to the status sink (spec.md
// §4.1 "Public operation copy_file"). It does not call Close.
func (h *Handle) CopyFile(updates feedback.Updater) (uint64, error) {
	// The walker is the sole Size emitter for this operation (internal/walk);
	// CopyFile only ever reports Copied from here on (spec.md §8 property 7:
	// at most one Size precedes the first Copied per file).
	size := uint64(h.Info.Size())

	if ok, err := h.TryReflink(); err != nil {
		return 0, err
	} else if ok {
		_ = updates.Send(feedback.StatusUpdate{Kind: feedback.KindCopied, Bytes: size, OpID: h.OpID})
		return size, nil
	}

	sparse, err := xfs.Backend.ProbablySparse(h.In)
	if err != nil {
		return 0, err
	}
	if sparse {
		return h.copySparse(updates)
	}
	return h.copyDense(size, updates)
}

// copyDense copies exactly n bytes starting at the descriptors' current
// position, min(remaining, block_size) at a time (spec.md §4.1 step 3).
func (h *Handle) copyDense(n uint64, updates feedback.Updater) (uint64, error) {
	bs := h.Config.EffectiveBlockSize()
	var written uint64
	for written < n {
		chunk := n - written
		if chunk > bs {
			chunk = bs
		}
		copied, err := xfs.Backend.CopyRange(h.In, h.Out, chunk)
		if copied > 0 {
			written += copied
			_ = updates.Send(feedback.StatusUpdate{Kind: feedback.KindCopied, Bytes: copied, OpID: h.OpID})
		}
		if err != nil {
			return written, err
		}
		if copied == 0 {
			break
		}
	}
	return written, nil
}

// copySparse copies only the data extents, skipping holes (spec.md §4.1
// step 4).
func (h *Handle) copySparse(updates feedback.Updater) (uint64, error) {
	size := uint64(h.Info.Size())
	var total uint64
	pos := uint64(0)
	for pos < size {
		dataStart, holeStart, err := xfs.Backend.NextDataHole(h.In, h.Out, pos)
		if err != nil {
			return total, err
		}
		if holeStart > dataStart {
			n, err := h.copyDense(holeStart-dataStart, updates)
			total += n
			if err != nil {
				return total, err
			}
		}
		if holeStart <= pos {
			// No progress; avoid spinning forever on a malformed map.
			break
		}
		pos = holeStart
	}
	if err := h.Out.Truncate(int64(size)); err != nil {
		return total, xcperr.Wrap(xcperr.KindCopyError, "preserving sparse file virtual size", err)
	}
	return total, nil
}

// Close runs finalization (permissions/xattrs, timestamps, optional
// fsync) and releases both descriptors. Finalization failures are logged
// and swallowed, never returned, so they can't overwrite a copy error a
// caller already observed on the status bus (spec.md §4.1 step 5, §7
// propagation policy).
func (h *Handle) Close() {
	defer h.In.Close()
	defer h.Out.Close()

	log := logrus.WithFields(logrus.Fields{"from": h.From, "to": h.To, "op": h.OpID})

	if !h.Config.NoPerms {
		if err := copyXattrs(h.In, h.Out); err != nil {
			log.WithError(err).Warn("failed to copy extended attributes")
		}
		if err := h.Out.Chmod(h.Info.Mode().Perm()); err != nil {
			log.WithError(err).Warn("failed to copy permissions")
		}
	}
	if !h.Config.NoTimestamps {
		atime, mtime := xfs.Times(h.Info)
		if err := os.Chtimes(h.To, atime, mtime); err != nil {
			log.WithError(err).Warn("failed to copy timestamps")
		}
	}
	if h.Config.Fsync {
		if err := xfs.Backend.Sync(h.Out); err != nil {
			log.WithError(err).Warn("failed to sync destination")
		}
	}
}

// copyXattrs mirrors libfs::common::copy_xattr: best-effort, any single
// attribute failure aborts the copy but is not fatal to the file copy as
// a whole.
func copyXattrs(in, out *os.File) error {
	names, err := xattr.FList(in)
	if err != nil {
		if isXattrUnsupported(err) {
			return nil
		}
		return err
	}
	for _, name := range names {
		val, err := xattr.FGet(in, name)
		if err != nil {
			return err
		}
		if err := xattr.FSet(out, name, val); err != nil {
			return err
		}
	}
	return nil
}

func isXattrUnsupported(err error) bool {
	return xattr.IsNotExist(err) || !xattr.XATTR_SUPPORTED
}
