// Package walk implements the tree walker of spec.md §4.3: it turns a list
// of source paths into a stream of typed Operation values, creating
// directories inline so a child is never copied before its parent exists.
package walk

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/crackcomm/go-gitignore"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tarka/xcp-sub000/internal/config"
	"github.com/tarka/xcp-sub000/internal/feedback"
	"github.com/tarka/xcp-sub000/internal/xcperr"
	"github.com/tarka/xcp-sub000/internal/xfs"
)

// OpKind tags an Operation's payload.
type OpKind int

const (
	// OpCopy is a regular-file copy.
	OpCopy OpKind = iota
	// OpLink is a symlink recreation.
	OpLink
	// OpSpecial is a socket/char-device/FIFO recreation.
	OpSpecial
)

// Operation is one unit of work produced by the walker and consumed by a
// driver (spec.md "Operation"). Directory creation is not represented
// here: the walker performs it synchronously before descendants are
// emitted.
type Operation struct {
	Kind OpKind
	From string
	To   string
	// LinkTarget holds the raw target text read from a symlink (OpLink).
	LinkTarget string
	// Size is the source length, valid for OpCopy (used to emit a Size
	// update before the Copy operation is dispatched).
	Size int64
	ID   uuid.UUID
}

// Walk enumerates sources into dest according to cfg, sending Operation
// values on out and Size announcements on updates. It closes out when
// enumeration completes (successfully or not), mirroring the Rust
// original's walker dropping its channel sender so workers observe
// shutdown. A clobber hit or other fatal walk error is sent once on
// updates as a KindError before out is closed; a clobber hit is then
// returned as a KindEarlyShutdown error wrapping the KindDestinationExists
// one.
func Walk(sources []string, dest string, cfg *config.Config, out chan<- Operation, updates feedback.Updater) error {
	defer close(out)

	for _, source := range sources {
		if err := walkOne(source, dest, cfg, out, updates); err != nil {
			feedback.SendError(updates, uuid.Nil, err)
			if errors.Is(err, xcperr.Sentinel(xcperr.KindDestinationExists)) {
				return xcperr.Wrap(xcperr.KindEarlyShutdown, "walk aborted", err)
			}
			return err
		}
	}
	return nil
}

func walkOne(source, dest string, cfg *config.Config, out chan<- Operation, updates feedback.Updater) error {
	source = filepath.Clean(source)
	srcInfo, err := os.Lstat(source)
	if err != nil {
		return xcperr.Wrap(xcperr.KindInvalidSource, "source does not exist", err).WithPath(source)
	}

	targetBase := dest
	if destIsExistingDir(dest) && !cfg.NoTargetDirectory {
		targetBase = filepath.Join(dest, filepath.Base(source))
	}

	if !srcInfo.IsDir() {
		// A single file source: no directory walk required.
		return emitEntry(source, targetBase, cfg, out, updates)
	}

	matcher := loadGitignore(source, cfg)

	// Dereference applies to the source root only; symlinks inside the
	// walked tree are recreated as links.
	treeCfg := *cfg
	treeCfg.Dereference = false

	return filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return xcperr.Wrap(xcperr.KindInvalidSource, "walking source tree", err).WithPath(path)
		}
		rel, relErr := filepath.Rel(source, path)
		if relErr != nil {
			return xcperr.Wrap(xcperr.KindInvalidSource, "computing relative path", relErr).WithPath(path)
		}
		if matcher != nil && rel != "." && matcher.Match(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := targetBase
		if rel != "." {
			target = filepath.Join(targetBase, rel)
		}

		if d.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return xcperr.Wrap(xcperr.KindCopyError, "creating directory", err).WithPath(target)
			}
			return nil
		}

		return emitEntry(path, target, &treeCfg, out, updates)
	})
}

// emitEntry dispatches a single non-directory tree entry by file type
// (spec.md §4.3 step 3 "Dispatch by file type").
func emitEntry(from, to string, cfg *config.Config, out chan<- Operation, updates feedback.Updater) error {
	if _, err := os.Lstat(to); err == nil && cfg.NoClobber {
		return xcperr.New(xcperr.KindDestinationExists, "destination file exists").WithPath(to)
	}

	info, err := os.Lstat(from)
	if err != nil {
		return xcperr.Wrap(xcperr.KindInvalidSource, "statting source entry", err).WithPath(from)
	}

	id := uuid.New()
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		if cfg.Dereference {
			resolved, err := filepath.EvalSymlinks(from)
			if err != nil {
				return xcperr.Wrap(xcperr.KindInvalidSource, "dereferencing symlink", err).WithPath(from)
			}
			return emitEntry(resolved, to, cfg, out, updates)
		}
		linkTarget, err := os.Readlink(from)
		if err != nil {
			return xcperr.Wrap(xcperr.KindInvalidSource, "reading symlink", err).WithPath(from)
		}
		out <- Operation{Kind: OpLink, From: from, To: to, LinkTarget: linkTarget, ID: id}
		return nil

	case info.Mode().IsRegular():
		_ = updates.Send(feedback.StatusUpdate{Kind: feedback.KindSize, Bytes: uint64(info.Size()), OpID: id})
		out <- Operation{Kind: OpCopy, From: from, To: to, Size: info.Size(), ID: id}
		return nil

	case info.Mode()&(os.ModeSocket|os.ModeNamedPipe|os.ModeCharDevice) != 0:
		out <- Operation{Kind: OpSpecial, From: from, To: to, ID: id}
		return nil

	default:
		return xcperr.New(xcperr.KindUnknownFileType, "unsupported file type").WithPath(from)
	}
}

func destIsExistingDir(dest string) bool {
	fi, err := os.Stat(dest)
	return err == nil && fi.IsDir()
}

// loadGitignore builds a matcher from <source>/.gitignore when enabled
// (spec.md §4.3 step 2). Only the root-level file is honored; sub-
// directory gitignores are ignored by design.
func loadGitignore(source string, cfg *config.Config) *gitignore.GitIgnore {
	if !cfg.Gitignore {
		return nil
	}
	giPath := filepath.Join(source, ".gitignore")
	if _, err := os.Stat(giPath); err != nil {
		return nil
	}
	gi, err := gitignore.NewFromFile(giPath)
	if err != nil {
		logrus.WithError(err).WithField("path", giPath).Warn("failed to parse .gitignore; ignoring it")
		return nil
	}
	return gi
}

// ValidateDestination applies the pre-flight checks of spec.md §4.3
// "Pre-flight validation": multiple sources require a directory
// destination, a directory source forbids a file destination, and a
// directory may not be copied onto itself.
func ValidateDestination(sources []string, dest string, cfg *config.Config) error {
	if len(sources) > 1 {
		if fi, err := os.Stat(dest); err != nil || !fi.IsDir() {
			return xcperr.New(xcperr.KindInvalidDestination, "destination must be a directory when copying multiple sources").WithPath(dest)
		}
	}
	for _, source := range sources {
		srcInfo, err := os.Lstat(source)
		if err != nil {
			return xcperr.Wrap(xcperr.KindInvalidSource, "source does not exist", err).WithPath(source)
		}
		if !srcInfo.IsDir() {
			continue
		}
		if !cfg.Recursive {
			return xcperr.New(xcperr.KindInvalidSource, "source is a directory but -r/--recursive was not given").WithPath(source)
		}
		if destFi, err := os.Stat(dest); err == nil && !destFi.IsDir() {
			return xcperr.New(xcperr.KindInvalidDestination, "cannot copy directory onto a file").WithPath(dest)
		}
		if same, err := xfs.IsSameFile(source, dest); err == nil && same {
			return xcperr.New(xcperr.KindInvalidDestination, "source and destination are the same directory").WithPath(dest)
		}
	}
	return nil
}
