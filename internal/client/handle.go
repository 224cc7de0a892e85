// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/ngandimoun/minato-tui/internal/stream"
)

// =============================================================================
// STREAM HANDLE
// =============================================================================

// StreamHandle couples a chat response body with its frame reader and owns
// releasing the body.
type StreamHandle struct {
	body   io.ReadCloser
	frames *stream.FrameReader
	logger *zap.Logger
	once   sync.Once
}

func newStreamHandle(body io.ReadCloser, logger *zap.Logger) *StreamHandle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandle{
		body:   body,
		frames: stream.NewFrameReader(body),
		logger: logger,
	}
}

// ReadFrame returns the next frame in arrival order. io.EOF ends the stream.
func (h *StreamHandle) ReadFrame() (stream.Frame, error) {
	return h.frames.ReadFrame()
}

// Close releases the underlying network reader. It is idempotent, and a
// release failure on an already-closed body is logged and swallowed, never
// propagated: by that point the stream's outcome is already decided.
func (h *StreamHandle) Close() {
	h.once.Do(func() {
		if err := h.body.Close(); err != nil {
			h.logger.Debug("stream body close failed", zap.Error(err))
		}
	})
}
