// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reducer merges streamed chat events into the message list.
package reducer

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/ngandimoun/minato-tui/internal/model"
	"github.com/ngandimoun/minato-tui/internal/stream"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Fallback display strings applied at finalization when the stream carried
// no text. The attachment variant wins when the turn had attachments.
const (
	FallbackAttachments = "Attachments received."
	FallbackGeneric     = "Response processed."
)

// reservedAnnotationKeys are never merged from an annotations frame into a
// message. They would overwrite identity or content fields owned by other
// events, letting one frame kind cross-talk into another's territory.
var reservedAnnotationKeys = map[string]struct{}{
	"id":          {},
	"role":        {},
	"content":     {},
	"timestamp":   {},
	"messageId":   {},
	"attachments": {},
}

// =============================================================================
// REDUCER
// =============================================================================

// Reducer applies decoded stream events to one assistant turn.
//
// All updates key off the placeholder's provisional id: the server id is
// unknown until the stream ends, and swapping it in early would strand
// later frames. The swap happens exactly once, in Finalize.
type Reducer struct {
	conv          *model.Conversation
	placeholderID string

	// acc grows the displayed text incrementally. strings.Builder keeps
	// the running concatenation linear.
	acc strings.Builder

	serverID       string
	hasAttachments bool
	sawFrame       bool
	errored        bool
	finalized      bool

	notifier Notifier
	logger   *zap.Logger
}

// New creates a reducer for one send operation. placeholderID is the
// provisional id of the assistant placeholder already inserted into conv;
// turnHasAttachments selects the finalization fallback string.
func New(conv *model.Conversation, placeholderID string, turnHasAttachments bool, notifier Notifier, logger *zap.Logger) *Reducer {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reducer{
		conv:           conv,
		placeholderID:  placeholderID,
		hasAttachments: turnHasAttachments,
		notifier:       notifier,
		logger:         logger,
	}
}

// SawFrame reports whether any event reached the reducer. Cancellation
// before the first frame removes the whole optimistic pair; after it, only
// the placeholder.
func (r *Reducer) SawFrame() bool {
	return r.sawFrame
}

// =============================================================================
// EVENT APPLICATION
// =============================================================================

// Apply folds one event into the message list. Events must arrive in
// stream order; the caller checks cancellation before each call.
func (r *Reducer) Apply(ev stream.Event) {
	if r.finalized {
		return
	}
	r.sawFrame = true

	switch ev.Kind {
	case stream.KindTextChunk, stream.KindMessage:
		r.applyText(ev.Text)
	case stream.KindUIComponent:
		r.applyComponent(ev.Component)
	case stream.KindAnnotations:
		r.applyAnnotations(ev.Annotations)
	case stream.KindError:
		r.applyError(ev.Err)
	case stream.KindStreamEnd:
		if ev.AssistantMessageID != "" {
			r.serverID = ev.AssistantMessageID
		}
	}
}

// applyText appends to the accumulator and republishes the running text as
// the placeholder's content, which is what makes typewriter rendering work.
func (r *Reducer) applyText(text string) {
	if text == "" {
		return
	}
	r.acc.WriteString(text)
	running := r.acc.String()
	r.conv.Update(r.placeholderID, func(m model.Message) model.Message {
		m.Content = running
		return m
	})
}

// applyComponent emits a sibling message carrying only the structured
// payload, keeping card rendering decoupled from the streaming text.
// A payload that is value-equal to, or shares type+id with, one already in
// the list is dropped.
func (r *Reducer) applyComponent(payload json.RawMessage) {
	if r.isDuplicateComponent(payload) {
		r.logger.Debug("duplicate ui-component suppressed")
		return
	}

	sibling := model.Message{
		ID:             model.NewProvisionalID(),
		Role:           model.RoleAssistant,
		Timestamp:      time.Now(),
		StructuredData: payload,
	}
	r.conv.InsertAfter(r.placeholderID, sibling)
}

// isDuplicateComponent checks the whole list for an existing payload that
// matches by canonical value or by type+id identity.
func (r *Reducer) isDuplicateComponent(payload json.RawMessage) bool {
	inType := gjson.GetBytes(payload, "type").String()
	inID := gjson.GetBytes(payload, "id").String()
	canonical := canonicalJSON(payload)

	for _, m := range r.conv.Messages {
		if len(m.StructuredData) == 0 {
			continue
		}
		if bytes.Equal(canonicalJSON(m.StructuredData), canonical) {
			return true
		}
		if inType != "" && inID != "" &&
			gjson.GetBytes(m.StructuredData, "type").String() == inType &&
			gjson.GetBytes(m.StructuredData, "id").String() == inID {
			return true
		}
	}
	return false
}

// applyAnnotations merges the object's keys into the placeholder's
// annotation map, skipping reserved identity/content keys. A messageId key
// is captured for the final id swap instead of being merged.
func (r *Reducer) applyAnnotations(raw json.RawMessage) {
	parsed := gjson.ParseBytes(raw)

	if id := parsed.Get("messageId"); id.Exists() && id.String() != "" {
		r.serverID = id.String()
	}

	merged := map[string]any{}
	parsed.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if _, reserved := reservedAnnotationKeys[k]; reserved {
			return true
		}
		merged[k] = value.Value()
		return true
	})
	if len(merged) == 0 {
		return
	}

	r.conv.Update(r.placeholderID, func(m model.Message) model.Message {
		if m.Annotations == nil {
			m.Annotations = make(map[string]any, len(merged))
		}
		for k, v := range merged {
			m.Annotations[k] = v
		}
		return m
	})
}

// applyError marks the turn failed and notifies the user. These are two
// independent obligations: the message mutation alone is not enough.
func (r *Reducer) applyError(p stream.ErrorPayload) {
	msg := p.Message
	if msg == "" {
		msg = "The assistant failed to answer."
	}
	r.errored = true
	r.conv.Update(r.placeholderID, func(m model.Message) model.Message {
		m.Error = true
		m.Content = msg
		return m
	})
	r.notifier.Notify(NotifyError, msg)
}

// =============================================================================
// TERMINAL TRANSITIONS
// =============================================================================

// Finalize performs the terminal merge once the frame stream has ended:
// the provisional id is swapped for the server id when one was captured,
// and empty turns get their policy fallback content. Structured data and
// attachments already on the message survive untouched. Finalize is
// idempotent; the swap can happen at most once. Returns the message's
// final id.
func (r *Reducer) Finalize() string {
	if r.finalized {
		return r.finalID()
	}
	r.finalized = true

	finalID := r.finalID()
	r.conv.Update(r.placeholderID, func(m model.Message) model.Message {
		m.ID = finalID
		if m.Content == "" && !r.errored {
			if r.hasAttachments {
				m.Content = FallbackAttachments
			} else {
				m.Content = FallbackGeneric
			}
		}
		return m
	})
	return finalID
}

// FailTransport converts a transport-level failure (rejected request,
// non-success status, network error mid-stream) into an errored turn. The
// placeholder is kept and marked, never silently removed, and the user is
// notified.
func (r *Reducer) FailTransport(userMessage string) {
	if r.finalized {
		return
	}
	r.finalized = true

	if userMessage == "" {
		userMessage = "Failed to reach Minato."
	}
	r.conv.Update(r.placeholderID, func(m model.Message) model.Message {
		m.Error = true
		if m.Content == "" {
			m.Content = userMessage
		}
		return m
	})
	r.notifier.Notify(NotifyError, userMessage)
}

// Abort cleans up after a user-initiated cancellation. The placeholder is
// always stripped; the paired optimistic user message goes too when the
// abort landed before any frame arrived. Cancellation is not an error, so
// the only notification is a neutral confirmation.
func (r *Reducer) Abort(userMessageID string) {
	if r.finalized {
		return
	}
	r.finalized = true

	r.conv.Remove(r.placeholderID)
	if !r.sawFrame && userMessageID != "" {
		r.conv.Remove(userMessageID)
	}
	r.notifier.Notify(NotifyInfo, "Cancelled.")
}

// =============================================================================
// HELPERS
// =============================================================================

func (r *Reducer) finalID() string {
	if r.serverID != "" {
		return r.serverID
	}
	return r.placeholderID
}

// canonicalJSON re-marshals a payload into Go's deterministic map key
// order so value equality ignores formatting and key order.
func canonicalJSON(raw json.RawMessage) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
