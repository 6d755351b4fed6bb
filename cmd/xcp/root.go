// Package xcp wires the cobra CLI surface of spec.md §6 onto the copy
// engine: flag parsing and validation, logging setup, driver selection and
// dispatch, and the progress bar.
package xcp

import (
	"fmt"
	"os"

	units "github.com/docker/go-units"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tarka/xcp-sub000/internal/config"
	"github.com/tarka/xcp-sub000/internal/driver"
	_ "github.com/tarka/xcp-sub000/internal/driver/parblock"
	_ "github.com/tarka/xcp-sub000/internal/driver/parfile"
	"github.com/tarka/xcp-sub000/internal/feedback"
	"github.com/tarka/xcp-sub000/internal/paths"
	"github.com/tarka/xcp-sub000/internal/progressbar"
	"github.com/tarka/xcp-sub000/internal/walk"
	"github.com/tarka/xcp-sub000/internal/xcperr"
)

var (
	flagRecursive      bool
	flagVerbose        int
	flagWorkers        int
	flagBlockSize      string
	flagNoClobber      bool
	flagGitignore      bool
	flagGlob           bool
	flagNoProgress     bool
	flagNoPerms        bool
	flagNoTimestamps   bool
	flagDriver         string
	flagNoTargetDir    bool
	flagFsync          bool
	flagReflink        string
	flagBackup         string
	flagVerifyChecksum bool
)

// NewRootCmd builds the xcp cobra command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "xcp SOURCE... DEST",
		Short:         "high-throughput file and directory copy",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(2),
		RunE:          runCopy,
	}

	f := cmd.Flags()
	f.BoolVarP(&flagRecursive, "recursive", "r", false, "recurse into directories")
	f.CountVarP(&flagVerbose, "verbose", "v", "increase log verbosity")
	f.IntVarP(&flagWorkers, "workers", "w", 0, "worker count; <=0 means CPU count")
	f.StringVar(&flagBlockSize, "block-size", "1MB", "block size, with K/M/G suffix")
	f.BoolVarP(&flagNoClobber, "no-clobber", "n", false, "refuse to overwrite an existing destination")
	f.BoolVar(&flagGitignore, "gitignore", false, "honor a root .gitignore")
	f.BoolVarP(&flagGlob, "glob", "g", false, "expand shell-style patterns in sources")
	f.BoolVar(&flagNoProgress, "no-progress", false, "suppress the progress bar")
	f.BoolVar(&flagNoPerms, "no-perms", false, "skip permission/xattr copy")
	f.BoolVar(&flagNoTimestamps, "no-timestamps", false, "skip atime/mtime copy")
	f.StringVar(&flagDriver, "driver", "parfile", "copy strategy: parfile|parblock")
	f.BoolVarP(&flagNoTargetDir, "no-target-directory", "T", false, "overwrite destination directory instead of nesting")
	f.BoolVar(&flagFsync, "fsync", false, "fsync each file after writing")
	f.StringVar(&flagReflink, "reflink", "auto", "CoW clone policy: auto|always|never")
	f.StringVar(&flagBackup, "backup", "never", "numbered backup policy: never|auto|numbered")
	f.BoolVar(&flagVerifyChecksum, "verify-checksum", false, "compare content after copy")

	return cmd
}

func runCopy(cmd *cobra.Command, args []string) error {
	setupLogging(flagVerbose)

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	sources, dest := args[:len(args)-1], args[len(args)-1]
	if cfg.Glob {
		sources, err = paths.ExpandGlobs(sources)
		if err != nil {
			return err
		}
	}

	if err := walk.ValidateDestination(sources, dest, cfg); err != nil {
		return err
	}

	drv, err := driver.New(cfg)
	if err != nil {
		return err
	}

	updater := feedback.NewChannelUpdater(cfg.EffectiveBlockSize())
	render := progressRenderer(flagNoProgress)

	// Per-file failures only reach the bus, so note any Error update on
	// its way to the renderer to turn it into a non-zero exit.
	updates := make(chan feedback.StatusUpdate)
	failed := false
	go func() {
		defer close(updates)
		for u := range updater.Channel() {
			if u.Kind == feedback.KindError {
				failed = true
			}
			updates <- u
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		render.Run(updates)
	}()

	copyErr := drv.CopyAll(sources, dest, updater)
	updater.Close()
	<-done

	if copyErr == nil && failed {
		copyErr = xcperr.New(xcperr.KindCopyError, "one or more operations failed")
	}
	return copyErr
}

func progressRenderer(noProgress bool) progressbar.Renderer {
	if noProgress {
		return progressbar.Noop{}
	}
	bar, err := progressbar.NewTcellBar(0)
	if err != nil {
		logrus.WithError(err).Warn("failed to initialize progress bar; falling back to no-progress")
		return progressbar.Noop{}
	}
	return bar
}

func buildConfig() (*config.Config, error) {
	blockSize, err := units.RAMInSize(flagBlockSize)
	if err != nil {
		return nil, xcperr.Wrap(xcperr.KindInvalidSource, "invalid --block-size value", err)
	}

	reflink, err := config.ParseReflink(flagReflink)
	if err != nil {
		return nil, err
	}
	backup, err := config.ParseBackup(flagBackup)
	if err != nil {
		return nil, err
	}
	drv, err := config.ParseDriver(flagDriver)
	if err != nil {
		return nil, err
	}

	return &config.Config{
		Workers:           flagWorkers,
		BlockSize:         uint64(blockSize),
		Gitignore:         flagGitignore,
		NoClobber:         flagNoClobber,
		NoPerms:           flagNoPerms,
		NoTimestamps:      flagNoTimestamps,
		NoTargetDirectory: flagNoTargetDir,
		Fsync:             flagFsync,
		Reflink:           reflink,
		Backup:            backup,
		VerifyChecksum:    flagVerifyChecksum,
		Driver:            drv,
		Recursive:         flagRecursive,
		Glob:              flagGlob,
	}, nil
}

func setupLogging(verbose int) {
	// go-colorable gives level-colored output on a real terminal and a
	// plain passthrough when stderr is redirected, including on Windows
	// consoles that don't natively understand ANSI codes.
	logrus.SetOutput(colorable.NewColorableStderr())
	level := logrus.WarnLevel
	switch {
	case verbose >= 2:
		level = logrus.DebugLevel
	case verbose == 1:
		level = logrus.InfoLevel
	}
	if env := os.Getenv("XCP_LOG_LEVEL"); env != "" {
		if parsed, err := logrus.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	logrus.SetLevel(level)
}

// Execute runs the xcp command against os.Args, returning a process exit
// code per spec.md §6 ("0 success; 1 any failure").
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "xcp:", err)
		return 1
	}
	return 0
}
