// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngandimoun/minato-tui/internal/client"
	"github.com/ngandimoun/minato-tui/internal/model"
)

// newTestController wires a controller against a test server.
func newTestController(t *testing.T, handler http.HandlerFunc) (*Controller, *model.Conversation) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := client.New("test-key", nil).
		WithBaseURL(srv.URL).
		WithHTTPClients(srv.Client(), srv.Client()).
		WithSendRate(6000, 10)
	conv := model.NewConversation()
	return NewController(c, conv, nil, nil), conv
}

func streamHandler(t *testing.T, records ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fl, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, rec := range records {
			_, _ = w.Write([]byte(rec))
			fl.Flush()
		}
	}
}

func waitTerminal(t *testing.T, ct *Controller) Update {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	u, err := ct.Wait(ctx)
	require.NoError(t, err)
	return u
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestTurnStreamsAndFinalizes(t *testing.T) {
	ct, conv := newTestController(t, streamHandler(t,
		"event: text-chunk\ndata: {\"text\":\"Hi\"}\n\n",
		"event: text-chunk\ndata: {\"text\":\" there\"}\n\n",
		"event: stream-end\ndata: {\"assistantMessageId\":\"srv-1\"}\n\n",
	))

	require.NoError(t, ct.Start(context.Background(), "hello", nil))
	u := waitTerminal(t, ct)

	assert.Equal(t, PhaseFinalized, u.Phase)
	assert.Equal(t, "srv-1", u.FinalID)
	assert.Equal(t, PhaseFinalized, ct.Phase())
	assert.False(t, ct.Busy())

	require.Equal(t, 2, conv.Len())
	msg, ok := conv.Get("srv-1")
	require.True(t, ok)
	assert.Equal(t, "Hi there", msg.Content)
	assert.Equal(t, model.RoleAssistant, msg.Role)
}

// The placeholder never travels: the wire payload ends at the user message.
func TestTurnPayloadExcludesPlaceholder(t *testing.T) {
	var gotBody []byte
	ct, _ := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1<<16)
		n, _ := r.Body.Read(buf)
		gotBody = buf[:n]
		streamHandler(t, "event: stream-end\ndata: {}\n\n")(w, r)
	})

	require.NoError(t, ct.Start(context.Background(), "ping", nil))
	waitTerminal(t, ct)

	assert.Contains(t, string(gotBody), `"ping"`)
	assert.NotContains(t, string(gotBody), `"assistant"`)
}

// A malformed frame in the middle costs only itself.
func TestTurnSkipsMalformedFrames(t *testing.T) {
	ct, conv := newTestController(t, streamHandler(t,
		"event: text-chunk\ndata: {\"text\":\"Hi\"}\n\n",
		"event: text-chunk\ndata: {\"text\":\n\n",
		"event: text-chunk\ndata: {\"text\":\" there\"}\n\n",
	))

	require.NoError(t, ct.Start(context.Background(), "hello", nil))
	u := waitTerminal(t, ct)

	require.Equal(t, PhaseFinalized, u.Phase)
	msg, ok := conv.Get(u.FinalID)
	require.True(t, ok)
	assert.Equal(t, "Hi there", msg.Content)
}

// =============================================================================
// STARTUP GUARDS
// =============================================================================

func TestStartRejectsEmptyTurn(t *testing.T) {
	ct, conv := newTestController(t, streamHandler(t))
	err := ct.Start(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrNothingToSend)
	assert.Equal(t, 0, conv.Len())
}

func TestStartRejectsConcurrentTurn(t *testing.T) {
	release := make(chan struct{})
	ct, _ := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		streamHandler(t, "event: stream-end\ndata: {}\n\n")(w, r)
	})

	require.NoError(t, ct.Start(context.Background(), "first", nil))
	err := ct.Start(context.Background(), "second", nil)
	assert.ErrorIs(t, err, ErrTurnActive)

	close(release)
	waitTerminal(t, ct)
}

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancelling before any frame arrives rolls back the whole optimistic pair.
func TestCancelBeforeFirstFrameRemovesPair(t *testing.T) {
	arrived := make(chan struct{})
	ct, conv := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel r.Context().
		_, _ = io.Copy(io.Discard, r.Body)
		close(arrived)
		<-r.Context().Done()
	})

	require.NoError(t, ct.Start(context.Background(), "hello", nil))
	assert.Equal(t, 2, conv.Len(), "optimistic pair appears before the network answers")

	<-arrived
	ct.Cancel()
	u := waitTerminal(t, ct)

	assert.Equal(t, PhaseAborted, u.Phase)
	assert.Len(t, u.Messages, 0, "pre-ack abort restores the pre-send list")
}

// Cancelling mid-stream keeps the user message and drops the placeholder.
func TestCancelMidStreamKeepsUserMessage(t *testing.T) {
	sent := make(chan struct{})
	ct, _ := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fl := w.(http.Flusher)
		_, _ = w.Write([]byte("event: text-chunk\ndata: {\"text\":\"partial\"}\n\n"))
		fl.Flush()
		close(sent)
		<-r.Context().Done()
	})

	require.NoError(t, ct.Start(context.Background(), "hello", nil))
	<-sent

	// Let the frame make it through the reducer before cancelling.
	deadline := time.After(5 * time.Second)
	for {
		var seen bool
		select {
		case u := <-ct.Updates():
			for _, m := range u.Messages {
				if m.Content == "partial" {
					seen = true
				}
			}
		case <-deadline:
			t.Fatal("frame never applied")
		}
		if seen {
			break
		}
	}

	ct.Cancel()
	u := waitTerminal(t, ct)

	assert.Equal(t, PhaseAborted, u.Phase)
	require.Len(t, u.Messages, 1, "only the placeholder is rolled back mid-stream")
	assert.Equal(t, model.RoleUser, u.Messages[0].Role)
}

// =============================================================================
// TRANSPORT FAILURE
// =============================================================================

func TestRejectedRequestMarksPlaceholder(t *testing.T) {
	ct, conv := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"maintenance window"}`))
	})

	require.NoError(t, ct.Start(context.Background(), "hello", nil))
	u := waitTerminal(t, ct)

	assert.Equal(t, PhaseErrored, u.Phase)
	require.Error(t, u.Err)

	require.Equal(t, 2, conv.Len(), "errored placeholder is kept, never removed")
	assert.True(t, conv.Messages[1].Error)
	assert.Equal(t, "maintenance window", conv.Messages[1].Content)
}

// =============================================================================
// VOICE TURNS
// =============================================================================

func TestVoiceTurnSingleJSONResponse(t *testing.T) {
	ct, conv := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, client.EndpointAudio, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"srv-9","role":"assistant","content":"Heard you."}`))
	})

	require.NoError(t, ct.StartVoice(context.Background(), []byte("webm-bytes"), "clip.webm"))
	u := waitTerminal(t, ct)

	assert.Equal(t, PhaseFinalized, u.Phase)
	assert.Equal(t, "srv-9", u.FinalID)
	msg, ok := conv.Get("srv-9")
	require.True(t, ok)
	assert.Equal(t, "Heard you.", msg.Content)
}

func TestVoiceTurnStreamingResponse(t *testing.T) {
	ct, conv := newTestController(t, func(w http.ResponseWriter, r *http.Request) {
		streamHandler(t,
			"event: text-chunk\ndata: {\"text\":\"Heard you.\"}\n\n",
			"event: stream-end\ndata: {\"assistantMessageId\":\"srv-10\"}\n\n",
		)(w, r)
	})

	require.NoError(t, ct.StartVoice(context.Background(), []byte("webm-bytes"), "clip.webm"))
	u := waitTerminal(t, ct)

	assert.Equal(t, PhaseFinalized, u.Phase)
	msg, ok := conv.Get("srv-10")
	require.True(t, ok)
	assert.Equal(t, "Heard you.", msg.Content)
}

func TestVoiceRejectsEmptyClip(t *testing.T) {
	ct, _ := newTestController(t, streamHandler(t))
	assert.ErrorIs(t, ct.StartVoice(context.Background(), nil, "clip.webm"), ErrNothingToSend)
}

// =============================================================================
// PHASE STRINGS
// =============================================================================

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseIdle, "idle"},
		{PhaseSending, "sending"},
		{PhaseStreaming, "streaming"},
		{PhaseFinalized, "finalized"},
		{PhaseAborted, "aborted"},
		{PhaseErrored, "errored"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.phase.String())
	}
	assert.True(t, PhaseAborted.Terminal())
	assert.False(t, PhaseStreaming.Terminal())
}
