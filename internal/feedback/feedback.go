// Package feedback implements the progress bus described in spec.md §4.6:
// a multi-producer channel of StatusUpdate values from workers to the
// caller, with an optional coalescing wrapper that groups small Copied
// updates into block_size-sized steps.
package feedback

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tarka/xcp-sub000/internal/xcperr"
)

// UpdateKind tags a StatusUpdate's payload.
type UpdateKind int

const (
	// KindSize announces a file's length before its copy begins, for
	// progress pre-sizing.
	KindSize UpdateKind = iota
	// KindCopied reports incremental bytes copied.
	KindCopied
	// KindError reports that an enqueued operation failed.
	KindError
)

// StatusUpdate is one message on the progress bus (spec.md "Status Update").
type StatusUpdate struct {
	Kind UpdateKind
	// Bytes is valid for KindSize and KindCopied.
	Bytes uint64
	// Err is valid for KindError.
	Err error
	// OpID correlates updates belonging to the same Operation even though
	// updates from different files may interleave arbitrarily on the bus
	// (spec.md §5 Ordering guarantees).
	OpID uuid.UUID
}

// Updater is the sink workers and drivers publish StatusUpdate values to.
type Updater interface {
	Send(update StatusUpdate) error
}

// NoopUpdater discards every update; used where no feedback is required.
type NoopUpdater struct{}

// Send implements Updater.
func (NoopUpdater) Send(StatusUpdate) error { return nil }

// ChannelUpdater publishes to a channel buffered to 256 updates, coalescing
// Copied updates so that small block-parallel writes don't saturate the
// channel: only an update that crosses a block_size boundary of cumulative
// bytes is forwarded. Size and Error updates always pass through. The
// channel is bounded: once 256 updates are waiting, Send blocks until the
// receiver reads one.
type ChannelUpdater struct {
	ch        chan StatusUpdate
	blockSize uint64
	sent      uint64 // atomic
	forwarded uint64 // atomic: bytes already carried by forwarded updates
}

// NewChannelUpdater creates a ChannelUpdater coalescing on blockSize-byte
// boundaries. A blockSize of 0 disables coalescing (every update passes).
func NewChannelUpdater(blockSize uint64) *ChannelUpdater {
	return &ChannelUpdater{
		ch:        make(chan StatusUpdate, 256),
		blockSize: blockSize,
	}
}

// Channel returns the receive end of the update channel. Call this before
// the ChannelUpdater is handed to a driver — there is only one receiver.
func (u *ChannelUpdater) Channel() <-chan StatusUpdate {
	return u.ch
}

// Close closes the update channel once all senders are known to be done.
// The caller owns the receive end and must keep draining it while senders
// are active, since a full buffer blocks Send. Send calls made after Close
// panic (send on closed channel).
func (u *ChannelUpdater) Close() {
	close(u.ch)
}

// Send implements Updater.
//
// A forwarded Copied update carries every byte accumulated since the
// previous forward, so the Bytes of forwarded updates sum to the running
// total as of the last blockSize boundary crossed. Bytes counted after the
// last crossing are not forwarded.
func (u *ChannelUpdater) Send(update StatusUpdate) error {
	if update.Kind != KindCopied || u.blockSize == 0 {
		u.ch <- update
		return nil
	}
	total := atomic.AddUint64(&u.sent, update.Bytes)
	prev := total - update.Bytes
	if total/u.blockSize > prev/u.blockSize {
		for {
			done := atomic.LoadUint64(&u.forwarded)
			if total <= done {
				// A concurrent sender already forwarded past this total.
				return nil
			}
			if atomic.CompareAndSwapUint64(&u.forwarded, done, total) {
				update.Bytes = total - done
				u.ch <- update
				return nil
			}
		}
	}
	return nil
}

// SendError is a convenience wrapper used at call sites that only have an
// error and an operation id, matching the many "on error, stats.send(Error)"
// spots in the Rust original's drivers.
func SendError(u Updater, opID uuid.UUID, err error) {
	_ = u.Send(StatusUpdate{Kind: KindError, Err: wrapCopyError(err), OpID: opID})
}

func wrapCopyError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*xcperr.Error); ok {
		return err
	}
	return xcperr.Wrap(xcperr.KindCopyError, "copy failed", err)
}
