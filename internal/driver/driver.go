// Package driver defines the CopyDriver contract shared by the
// file-parallel and block-parallel strategies (spec.md §4.4, §4.5) and a
// small registry used by cmd/xcp to select one from the --driver flag.
package driver

import (
	"github.com/tarka/xcp-sub000/internal/config"
	"github.com/tarka/xcp-sub000/internal/feedback"
	"github.com/tarka/xcp-sub000/internal/xcperr"
)

// CopyDriver copies a list of sources into dest, publishing progress and
// errors on stats. CopyAll blocks until every operation has been
// dispatched and accounted for.
type CopyDriver interface {
	CopyAll(sources []string, dest string, stats feedback.Updater) error
}

// Factory builds a CopyDriver for the given configuration.
type Factory func(cfg *config.Config) (CopyDriver, error)

var registry = map[config.Driver]Factory{}

// Register adds a driver factory under the given selector. Called from
// each driver subpackage's init().
func Register(kind config.Driver, f Factory) {
	registry[kind] = f
}

// New builds the CopyDriver selected by cfg.Driver.
func New(cfg *config.Config) (CopyDriver, error) {
	f, ok := registry[cfg.Driver]
	if !ok {
		return nil, xcperr.New(xcperr.KindUnknownDriver, cfg.Driver.String())
	}
	return f(cfg)
}
