// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/ngandimoun/minato-tui/internal/client"
	"github.com/ngandimoun/minato-tui/internal/model"
	"github.com/ngandimoun/minato-tui/internal/reducer"
	"github.com/ngandimoun/minato-tui/internal/stream"
)

// Sentinel errors for turn startup.
var (
	// ErrTurnActive is returned when a send is attempted while another
	// turn is still in flight.
	ErrTurnActive = errors.New("session: a turn is already in flight")

	// ErrNothingToSend is returned for a turn with no text and no
	// attachments.
	ErrNothingToSend = errors.New("session: nothing to send")
)

// =============================================================================
// PHASES
// =============================================================================

// Phase is the lifecycle state of a send operation.
type Phase int

const (
	// PhaseIdle means no turn is in flight.
	PhaseIdle Phase = iota
	// PhaseSending covers the window between submit and the first frame.
	PhaseSending
	// PhaseStreaming means frames are being applied.
	PhaseStreaming
	// PhaseFinalized is the success terminal state.
	PhaseFinalized
	// PhaseAborted is the user-cancelled terminal state.
	PhaseAborted
	// PhaseErrored is the failure terminal state.
	PhaseErrored
)

// String returns the phase name for logs.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	case PhaseFinalized:
		return "finalized"
	case PhaseAborted:
		return "aborted"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase is an end state.
func (p Phase) Terminal() bool {
	return p == PhaseFinalized || p == PhaseAborted || p == PhaseErrored
}

// =============================================================================
// UPDATES
// =============================================================================

// Update is a render ping emitted after every state change. Messages is a
// consistent snapshot of the conversation at that point; consumers render
// from the snapshot instead of reading the live list while the turn's
// goroutine is mutating it.
type Update struct {
	Phase    Phase
	Messages []model.Message

	// FinalID is set on PhaseFinalized: the assistant message's id after
	// the provisional swap.
	FinalID string

	// Err is set on PhaseErrored. The user-facing notification has
	// already been delivered through the Notifier by then.
	Err error
}

// =============================================================================
// TURN CONTROLLER
// =============================================================================

// Controller runs send operations against one conversation. At most one
// turn is in flight at a time; starting a second before the first reaches
// a terminal phase fails with ErrTurnActive.
type Controller struct {
	client   *client.Client
	conv     *model.Conversation
	notifier reducer.Notifier
	logger   *zap.Logger

	cancelMgr *cancelManager

	mu            sync.Mutex
	phase         Phase
	userID        string
	placeholderID string

	updates chan Update
}

// NewController creates a turn controller for conv.
func NewController(c *client.Client, conv *model.Conversation, notifier reducer.Notifier, logger *zap.Logger) *Controller {
	if notifier == nil {
		notifier = reducer.NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		client:    c,
		conv:      conv,
		notifier:  notifier,
		logger:    logger,
		cancelMgr: newCancelManager(),
		phase:     PhaseIdle,
		updates:   make(chan Update, 64),
	}
}

// Updates returns the channel of render pings. The channel is shared
// across turns and never closed.
func (ct *Controller) Updates() <-chan Update {
	return ct.updates
}

// Phase returns the current lifecycle phase.
func (ct *Controller) Phase() Phase {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.phase
}

// Busy reports whether a turn is in flight.
func (ct *Controller) Busy() bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.phase == PhaseSending || ct.phase == PhaseStreaming
}

// =============================================================================
// STARTING A TURN
// =============================================================================

// Start submits a text turn. The optimistic pair (user message plus
// assistant placeholder) is appended before any network activity, so the
// UI can render immediately; the reducer later reconciles or rolls the
// pair back. Frames are applied on a background goroutine and surface as
// Updates.
func (ct *Controller) Start(parent context.Context, text string, attachments []model.Attachment) error {
	if text == "" && len(attachments) == 0 {
		return ErrNothingToSend
	}

	ct.mu.Lock()
	if ct.phase == PhaseSending || ct.phase == PhaseStreaming {
		ct.mu.Unlock()
		return ErrTurnActive
	}

	var user model.Message
	if len(attachments) > 0 {
		user = model.NewUserMessageWithAttachments(text, attachments)
	} else {
		user = model.NewUserMessage(text)
	}
	placeholder := model.NewAssistantPlaceholder()

	ct.conv.Append(user)
	// Snapshot for the wire before the placeholder joins the list: the
	// empty assistant message is local-only scaffolding.
	payload := ct.conv.Messages
	ct.conv.Append(placeholder)

	ct.phase = PhaseSending
	ct.userID = user.ID
	ct.placeholderID = placeholder.ID
	ct.mu.Unlock()

	red := reducer.New(ct.conv, placeholder.ID, len(attachments) > 0, ct.notifier, ct.logger)

	ctx, cancel := context.WithCancel(parent)
	ct.cancelMgr.set(cancel)

	ct.publish(Update{Phase: PhaseSending, Messages: ct.conv.Messages})
	go ct.run(ctx, cancel, red, payload)
	return nil
}

// Cancel aborts the turn in flight, if any. The rollback itself happens
// on the turn goroutine once it observes the cancelled context.
func (ct *Controller) Cancel() {
	ct.cancelMgr.cancel()
}

// Wait drains updates until the current turn reaches a terminal phase and
// returns that terminal update. Used by one-shot sends.
func (ct *Controller) Wait(ctx context.Context) (Update, error) {
	for {
		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case u := <-ct.updates:
			if u.Phase.Terminal() {
				return u, nil
			}
		}
	}
}

// =============================================================================
// FRAME LOOP
// =============================================================================

// run opens the stream and applies frames until EOF, error, or
// cancellation. Cancellation is checked before every frame is applied so
// an abort never lands mid-merge.
func (ct *Controller) run(ctx context.Context, cancel context.CancelFunc, red *reducer.Reducer, payload []model.Message) {
	defer cancel()

	handle, err := ct.client.StartTurn(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			ct.abort(red)
			return
		}
		ct.failTransport(red, err)
		return
	}
	defer handle.Close()

	ct.setPhase(PhaseStreaming)
	ct.publish(Update{Phase: PhaseStreaming, Messages: ct.conv.Messages})

	for {
		if ctx.Err() != nil {
			ct.abort(red)
			return
		}

		frame, err := handle.ReadFrame()
		if err == io.EOF {
			ct.finalize(red)
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				ct.abort(red)
				return
			}
			ct.failTransport(red, err)
			return
		}

		ev, err := stream.Decode(frame)
		if err != nil {
			// A malformed frame costs itself, never the turn.
			ct.logger.Warn("skipping malformed frame",
				zap.String("event", frame.Event),
				zap.Error(err))
			continue
		}

		if ctx.Err() != nil {
			ct.abort(red)
			return
		}
		red.Apply(ev)
		ct.publish(Update{Phase: PhaseStreaming, Messages: ct.conv.Messages})
	}
}

// =============================================================================
// VOICE TURNS
// =============================================================================

// voicePlaceholderText stands in for the recorded clip in the optimistic
// user message until the server's transcription arrives.
const voicePlaceholderText = "(voice message)"

// StartVoice submits a recorded audio clip. The response is either the
// usual frame stream or one complete JSON message; both paths converge on
// the same reducer bookkeeping.
func (ct *Controller) StartVoice(parent context.Context, audio []byte, filename string) error {
	if len(audio) == 0 {
		return ErrNothingToSend
	}

	ct.mu.Lock()
	if ct.phase == PhaseSending || ct.phase == PhaseStreaming {
		ct.mu.Unlock()
		return ErrTurnActive
	}

	user := model.NewUserMessage(voicePlaceholderText)
	placeholder := model.NewAssistantPlaceholder()
	ct.conv.Append(user)
	payload := ct.conv.Messages
	ct.conv.Append(placeholder)

	ct.phase = PhaseSending
	ct.userID = user.ID
	ct.placeholderID = placeholder.ID
	ct.mu.Unlock()

	red := reducer.New(ct.conv, placeholder.ID, false, ct.notifier, ct.logger)

	ctx, cancel := context.WithCancel(parent)
	ct.cancelMgr.set(cancel)

	ct.publish(Update{Phase: PhaseSending, Messages: ct.conv.Messages})
	go ct.runVoice(ctx, cancel, red, audio, filename, payload)
	return nil
}

func (ct *Controller) runVoice(ctx context.Context, cancel context.CancelFunc, red *reducer.Reducer, audio []byte, filename string, payload []model.Message) {
	defer cancel()

	result, err := ct.client.StartVoiceTurn(ctx, audio, filename, payload)
	if err != nil {
		if ctx.Err() != nil {
			ct.abort(red)
			return
		}
		ct.failTransport(red, err)
		return
	}

	if result.Stream != nil {
		defer result.Stream.Close()
		ct.setPhase(PhaseStreaming)
		ct.publish(Update{Phase: PhaseStreaming, Messages: ct.conv.Messages})

		for {
			if ctx.Err() != nil {
				ct.abort(red)
				return
			}
			frame, err := result.Stream.ReadFrame()
			if err == io.EOF {
				ct.finalize(red)
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					ct.abort(red)
					return
				}
				ct.failTransport(red, err)
				return
			}
			ev, err := stream.Decode(frame)
			if err != nil {
				ct.logger.Warn("skipping malformed frame",
					zap.String("event", frame.Event),
					zap.Error(err))
				continue
			}
			if ctx.Err() != nil {
				ct.abort(red)
				return
			}
			red.Apply(ev)
			ct.publish(Update{Phase: PhaseStreaming, Messages: ct.conv.Messages})
		}
	}

	// Single-object branch: the server answered with the complete
	// assistant message in one piece.
	if result.Message != nil {
		if result.Message.Content != "" {
			red.Apply(stream.Event{Kind: stream.KindTextChunk, Text: result.Message.Content})
		}
		if result.Message.ID != "" {
			red.Apply(stream.Event{Kind: stream.KindStreamEnd, AssistantMessageID: result.Message.ID})
		}
	}
	ct.finalize(red)
}

// =============================================================================
// TERMINAL TRANSITIONS
// =============================================================================

func (ct *Controller) finalize(red *reducer.Reducer) {
	finalID := red.Finalize()
	ct.setPhase(PhaseFinalized)
	ct.logger.Debug("turn finalized", zap.String("message_id", finalID))
	ct.publish(Update{Phase: PhaseFinalized, Messages: ct.conv.Messages, FinalID: finalID})
}

func (ct *Controller) abort(red *reducer.Reducer) {
	ct.mu.Lock()
	userID := ct.userID
	ct.mu.Unlock()

	red.Abort(userID)
	ct.setPhase(PhaseAborted)
	ct.logger.Debug("turn aborted")
	ct.publish(Update{Phase: PhaseAborted, Messages: ct.conv.Messages})
}

func (ct *Controller) failTransport(red *reducer.Reducer, err error) {
	red.FailTransport(transportMessage(err))
	ct.setPhase(PhaseErrored)
	ct.logger.Warn("turn failed", zap.Error(err))
	ct.publish(Update{Phase: PhaseErrored, Messages: ct.conv.Messages, Err: err})
}

// transportMessage picks the user-facing string for a transport failure.
func transportMessage(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}
	if errors.Is(err, client.ErrRateLimited) {
		return "Minato is rate limiting requests. Give it a moment."
	}
	return "Failed to reach Minato. Check your connection."
}

// =============================================================================
// HELPERS
// =============================================================================

func (ct *Controller) setPhase(p Phase) {
	ct.mu.Lock()
	ct.phase = p
	ct.mu.Unlock()
}

// publish delivers an update without ever blocking the frame loop: when
// the consumer lags, the oldest pending ping is dropped. Every update
// carries a full snapshot, so losing an intermediate one only skips a
// repaint.
func (ct *Controller) publish(u Update) {
	for {
		select {
		case ct.updates <- u:
			return
		default:
			select {
			case <-ct.updates:
			default:
			}
		}
	}
}
