// Package config holds the value types shared across the walker, drivers
// and copy handle: the run configuration and the small enums that gate
// reflink, backup and driver selection.
package config

import (
	"fmt"
	"runtime"

	"github.com/tarka/xcp-sub000/internal/xcperr"
)

// Reflink selects the copy-offload clone policy (spec.md §4.1).
type Reflink int

const (
	// ReflinkAuto attempts a clone and silently falls back to a data copy.
	ReflinkAuto Reflink = iota
	// ReflinkAlways attempts a clone and fails the file if it can't.
	ReflinkAlways
	// ReflinkNever never attempts a clone.
	ReflinkNever
)

// ParseReflink parses a --reflink flag value.
func ParseReflink(s string) (Reflink, error) {
	switch s {
	case "auto", "":
		return ReflinkAuto, nil
	case "always":
		return ReflinkAlways, nil
	case "never":
		return ReflinkNever, nil
	default:
		return 0, xcperr.New(xcperr.KindInvalidOption, fmt.Sprintf("unknown reflink policy %q", s))
	}
}

func (r Reflink) String() string {
	switch r {
	case ReflinkAlways:
		return "always"
	case ReflinkNever:
		return "never"
	default:
		return "auto"
	}
}

// Backup selects the numbered-backup policy (spec.md §4.7).
type Backup int

const (
	// BackupDisabled never renames an existing destination.
	BackupDisabled Backup = iota
	// BackupAuto only backs up if a prior numbered backup already exists.
	BackupAuto
	// BackupNumbered always renames an existing destination.
	BackupNumbered
)

// ParseBackup parses a --backup flag value.
func ParseBackup(s string) (Backup, error) {
	switch s {
	case "", "never", "disabled":
		return BackupDisabled, nil
	case "auto":
		return BackupAuto, nil
	case "numbered", "always":
		return BackupNumbered, nil
	default:
		return 0, xcperr.New(xcperr.KindInvalidOption, fmt.Sprintf("unknown backup policy %q", s))
	}
}

// Driver selects which parallel strategy copies a tree (spec.md §4.4, §4.5).
type Driver int

const (
	// DriverParFile is one worker per file.
	DriverParFile Driver = iota
	// DriverParBlock splits each file across a bounded block pool.
	DriverParBlock
)

// ParseDriver parses a --driver flag value.
func ParseDriver(s string) (Driver, error) {
	switch s {
	case "", "parfile":
		return DriverParFile, nil
	case "parblock":
		return DriverParBlock, nil
	default:
		return 0, xcperr.New(xcperr.KindUnknownDriver, fmt.Sprintf("unknown driver %q", s))
	}
}

func (d Driver) String() string {
	if d == DriverParBlock {
		return "parblock"
	}
	return "parfile"
}

// DefaultBlockSize is the default unit for progress coalescing and
// block-parallel splitting (spec.md §3).
const DefaultBlockSize = 1024 * 1024

// Config is the immutable set of options threaded through the walker,
// drivers and copy handle for one invocation (spec.md §3 Configuration).
type Config struct {
	// Workers is the worker count; 0 means one per logical CPU.
	Workers int
	// BlockSize is the unit of progress coalescing and block-parallel split.
	BlockSize uint64
	// Gitignore honors a root .gitignore in each source.
	Gitignore bool
	// NoClobber fails when the destination file exists.
	NoClobber bool
	// NoPerms skips permission/xattr copy.
	NoPerms bool
	// NoTimestamps skips timestamp copy.
	NoTimestamps bool
	// NoTargetDirectory overwrites an existing directory destination
	// instead of nesting the source inside it.
	NoTargetDirectory bool
	// Fsync flushes each written file before closing.
	Fsync bool
	// Reflink is the copy-offload clone policy.
	Reflink Reflink
	// Dereference follows symlinks at the source root. A root symlink that
	// resolves to a directory is not walked; the walker reports it as an
	// unknown file type.
	Dereference bool
	// Backup is the numbered-backup policy.
	Backup Backup
	// VerifyChecksum enables the optional post-copy verification pass.
	VerifyChecksum bool
	// Driver selects the parallel copy strategy.
	Driver Driver
	// Recursive allows descending into directories.
	Recursive bool
	// Glob expands shell-style patterns in the source list.
	Glob bool
}

// NumWorkers resolves Workers == 0 to the number of logical CPUs, matching
// the Rust original's num_cpus::get() call in libxcp::config::Config.
func (c *Config) NumWorkers() int {
	if c.Workers <= 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}

// EffectiveBlockSize resolves a zero BlockSize to DefaultBlockSize.
func (c *Config) EffectiveBlockSize() uint64 {
	if c.BlockSize == 0 {
		return DefaultBlockSize
	}
	return c.BlockSize
}

// Default returns a Config with the documented defaults (spec.md §6).
func Default() *Config {
	return &Config{
		Workers:   0,
		BlockSize: DefaultBlockSize,
		Reflink:   ReflinkAuto,
		Backup:    BackupDisabled,
		Driver:    DriverParFile,
	}
}
