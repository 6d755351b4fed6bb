// Package progressbar is the thin interactive progress widget named as an
// out-of-scope collaborator in spec.md §1: it only needs to consume the
// progress bus and render a bar, so it's specified here at its interface
// and given a real tcell-backed implementation plus a --no-progress no-op.
package progressbar

import (
	"fmt"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/sirupsen/logrus"

	"github.com/tarka/xcp-sub000/internal/feedback"
)

// Renderer consumes a feedback bus until it closes, rendering progress as
// it goes. Run blocks for the lifetime of the bus.
type Renderer interface {
	Run(updates <-chan feedback.StatusUpdate)
}

// Noop discards every update without drawing anything; used for
// --no-progress or when the tcell screen can't be initialized.
type Noop struct{}

// Run implements Renderer by draining the channel without rendering.
func (Noop) Run(updates <-chan feedback.StatusUpdate) {
	for range updates {
	}
}

// TcellBar renders a single-line total-bytes progress bar using tcell's
// raw screen mode, redrawing on every update it receives.
type TcellBar struct {
	total  uint64
	copied uint64 // atomic
	errs   uint64 // atomic
	screen tcell.Screen
}

// NewTcellBar builds a TcellBar targeting total bytes of expected copy
// work. total may be 0 if the size isn't known up front; the bar then
// renders a byte counter instead of a percentage.
func NewTcellBar(total uint64) (*TcellBar, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	return &TcellBar{total: total, screen: screen}, nil
}

// Run implements Renderer.
func (b *TcellBar) Run(updates <-chan feedback.StatusUpdate) {
	defer b.screen.Fini()
	for u := range updates {
		switch u.Kind {
		case feedback.KindSize:
			atomic.AddUint64(&b.total, u.Bytes)
		case feedback.KindCopied:
			atomic.AddUint64(&b.copied, u.Bytes)
		case feedback.KindError:
			atomic.AddUint64(&b.errs, 1)
			logrus.WithError(u.Err).Warn("copy error")
		}
		b.draw()
	}
}

func (b *TcellBar) draw() {
	total := atomic.LoadUint64(&b.total)
	copied := atomic.LoadUint64(&b.copied)
	errs := atomic.LoadUint64(&b.errs)

	b.screen.Clear()
	line := formatLine(copied, total, errs)
	for i, r := range line {
		b.screen.SetContent(i, 0, r, nil, tcell.StyleDefault)
	}
	b.screen.Show()
}

func formatLine(copied, total, errs uint64) string {
	if total == 0 {
		return fmt.Sprintf("copied %d bytes (%d errors)", copied, errs)
	}
	pct := float64(copied) / float64(total) * 100
	return fmt.Sprintf("%6.2f%%  %d/%d bytes (%d errors)", pct, copied, total, errs)
}
