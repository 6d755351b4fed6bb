package xcperr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tarka/xcp-sub000/internal/xcperr"
)

func TestErrorIsMatchesOnKindOnly(t *testing.T) {
	err := xcperr.New(xcperr.KindDestinationExists, "some message").WithPath("/tmp/x")
	assert.True(t, errors.Is(err, xcperr.Sentinel(xcperr.KindDestinationExists)))
	assert.False(t, errors.Is(err, xcperr.Sentinel(xcperr.KindInvalidSource)))
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := xcperr.Wrap(xcperr.KindCopyError, "copy failed", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.ErrorIs(t, err, cause)
}

func TestErrorMessageIncludesPathAndCause(t *testing.T) {
	cause := errors.New("no such file")
	err := xcperr.Wrap(xcperr.KindInvalidSource, "opening source", cause).WithPath("/a/b")
	msg := err.Error()
	assert.Contains(t, msg, "/a/b")
	assert.Contains(t, msg, "no such file")
	assert.Contains(t, msg, "opening source")
}
