// Package parfile implements the file-parallel driver of spec.md §4.4:
// one operation queue fed by a walker goroutine, consumed by N worker
// goroutines, one file per worker at a time. The queue is an unbuffered
// channel, so the walker blocks on each operation until a worker takes it.
package parfile

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tarka/xcp-sub000/internal/config"
	"github.com/tarka/xcp-sub000/internal/copyhandle"
	"github.com/tarka/xcp-sub000/internal/driver"
	"github.com/tarka/xcp-sub000/internal/feedback"
	"github.com/tarka/xcp-sub000/internal/verify"
	"github.com/tarka/xcp-sub000/internal/walk"
	"github.com/tarka/xcp-sub000/internal/xcperr"
	"github.com/tarka/xcp-sub000/internal/xfs"
)

func init() {
	driver.Register(config.DriverParFile, New)
}

// Driver is the file-parallel CopyDriver.
type Driver struct {
	cfg *config.Config
}

// New builds a file-parallel Driver.
func New(cfg *config.Config) (driver.CopyDriver, error) {
	return &Driver{cfg: cfg}, nil
}

// CopyAll implements driver.CopyDriver.
func (d *Driver) CopyAll(sources []string, dest string, stats feedback.Updater) error {
	if err := walk.ValidateDestination(sources, dest, d.cfg); err != nil {
		return err
	}

	ops := make(chan walk.Operation)
	walkErrCh := make(chan error, 1)
	go func() {
		walkErrCh <- walk.Walk(sources, dest, d.cfg, ops, stats)
	}()

	nworkers := d.cfg.NumWorkers()
	var wg sync.WaitGroup
	wg.Add(nworkers)
	for i := 0; i < nworkers; i++ {
		go func() {
			defer wg.Done()
			copyWorker(ops, d.cfg, stats)
		}()
	}
	wg.Wait()

	return <-walkErrCh
}

func copyWorker(ops <-chan walk.Operation, cfg *config.Config, stats feedback.Updater) {
	for op := range ops {
		log := logrus.WithFields(logrus.Fields{"from": op.From, "to": op.To, "op": op.ID})
		switch op.Kind {
		case walk.OpCopy:
			log.Info("copy")
			handle, err := copyhandle.New(op.From, op.To, cfg)
			if err != nil {
				feedback.SendError(stats, op.ID, err)
				log.WithError(err).Error("error copying; aborting")
				continue
			}
			handle.OpID = op.ID
			_, err = handle.CopyFile(stats)
			handle.Close()
			if err != nil {
				feedback.SendError(stats, op.ID, err)
				log.WithError(err).Error("error copying; aborting")
				continue
			}
			if cfg.VerifyChecksum {
				verifyAndReport(op, stats, log)
			}

		case walk.OpLink:
			log.Info("symlink")
			if err := os.Symlink(op.LinkTarget, op.To); err != nil {
				// Symlink failures are logged only (cp leniency): a
				// symlink may reference a file that was never copied.
				log.WithError(err).Warn("failed to create symlink")
			}

		case walk.OpSpecial:
			log.Info("special file")
			if err := xfs.Backend.CopyNode(op.From, op.To); err != nil {
				feedback.SendError(stats, op.ID, err)
				log.WithError(err).Error("error copying special file")
			}
		}
	}
}

// verifyAndReport runs the optional post-copy checksum pass (spec.md §11).
func verifyAndReport(op walk.Operation, stats feedback.Updater, log *logrus.Entry) {
	ok, err := verify.Files(op.From, op.To)
	if err != nil {
		feedback.SendError(stats, op.ID, err)
		log.WithError(err).Error("checksum verification failed")
		return
	}
	if !ok {
		err := xcperr.New(xcperr.KindCopyError, "checksum mismatch after copy").WithPath(op.To)
		feedback.SendError(stats, op.ID, err)
		log.Error("checksum mismatch after copy")
	}
}
