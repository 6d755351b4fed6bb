package feedback_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarka/xcp-sub000/internal/feedback"
	"github.com/tarka/xcp-sub000/internal/xcperr"
)

func TestChannelUpdaterCoalescesCopiedUpdates(t *testing.T) {
	u := feedback.NewChannelUpdater(100)
	ch := u.Channel()

	go func() {
		defer u.Close()
		for i := 0; i < 10; i++ {
			_ = u.Send(feedback.StatusUpdate{Kind: feedback.KindCopied, Bytes: 10})
		}
	}()

	var total uint64
	var count int
	for update := range ch {
		require.Equal(t, feedback.KindCopied, update.Kind)
		total += update.Bytes
		count++
	}
	assert.Equal(t, uint64(100), total)
	assert.Less(t, count, 10, "coalescing should forward fewer updates than were sent")
}

func TestChannelUpdaterPassesSizeAndErrorUnconditionally(t *testing.T) {
	u := feedback.NewChannelUpdater(1 << 20)
	ch := u.Channel()

	go func() {
		defer u.Close()
		_ = u.Send(feedback.StatusUpdate{Kind: feedback.KindSize, Bytes: 1})
		_ = u.Send(feedback.StatusUpdate{Kind: feedback.KindError, Err: errors.New("boom")})
	}()

	var kinds []feedback.UpdateKind
	for update := range ch {
		kinds = append(kinds, update.Kind)
	}
	assert.Equal(t, []feedback.UpdateKind{feedback.KindSize, feedback.KindError}, kinds)
}

func TestNoopUpdaterDiscards(t *testing.T) {
	var u feedback.NoopUpdater
	assert.NoError(t, u.Send(feedback.StatusUpdate{Kind: feedback.KindCopied, Bytes: 99}))
}

func TestSendErrorWrapsPlainErrors(t *testing.T) {
	u := feedback.NewChannelUpdater(0)
	ch := u.Channel()

	go func() {
		defer u.Close()
		feedback.SendError(u, uuid.New(), errors.New("plain"))
	}()

	update := <-ch
	assert.Equal(t, feedback.KindError, update.Kind)
	var xerr *xcperr.Error
	require.True(t, errors.As(update.Err, &xerr))
	assert.Equal(t, xcperr.KindCopyError, xerr.Kind)
}
