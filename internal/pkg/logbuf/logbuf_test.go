package logbuf

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(max int) (*slog.Logger, *Handler) {
	h := NewHandler(slog.NewTextHandler(io.Discard, nil), max)
	return slog.New(h), h
}

func TestHandler_TailNewestFirst(t *testing.T) {
	logger, h := newTestLogger(10)

	logger.Info("first")
	logger.Info("second")
	logger.Warn("third", "device", "192.168.100.201")

	tail := h.Tail()
	require.Len(t, tail, 3)
	assert.Contains(t, tail[0], "third")
	assert.Contains(t, tail[0], "device=192.168.100.201")
	assert.Contains(t, tail[2], "first")
}

func TestHandler_Capacity(t *testing.T) {
	logger, h := newTestLogger(5)

	for i := 0; i < 20; i++ {
		logger.Info("entry", "n", i)
	}

	tail := h.Tail()
	require.Len(t, tail, 5)
	assert.Contains(t, tail[0], "n=19")
	assert.Contains(t, tail[4], "n=15")
}

func TestHandler_DerivedLoggersShareBuffer(t *testing.T) {
	logger, h := newTestLogger(10)

	logger.With("worker", "monitor").Info("connected")

	tail := h.Tail()
	require.Len(t, tail, 1)
	assert.Contains(t, tail[0], "connected")
}
