// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrMalformedFrame marks a frame whose payload failed to decode. The frame
// is skipped and the stream continues; a single malformed update is never
// fatal.
var ErrMalformedFrame = errors.New("malformed frame payload")

// =============================================================================
// EVENT UNION
// =============================================================================

// EventKind discriminates the members of the event union. Keeping the set
// closed lets every dispatch site switch exhaustively instead of branching
// on raw event-name strings.
type EventKind int

const (
	// KindMessage is the default event for records without an event line.
	KindMessage EventKind = iota
	// KindTextChunk appends text to the assistant placeholder.
	KindTextChunk
	// KindUIComponent carries a structured-data payload for card rendering.
	KindUIComponent
	// KindAnnotations merges non-content fields into the placeholder.
	KindAnnotations
	// KindError flags an in-band application failure.
	KindError
	// KindStreamEnd terminates the stream, optionally carrying the
	// server-assigned assistant message id.
	KindStreamEnd
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindTextChunk:
		return "text-chunk"
	case KindUIComponent:
		return "ui-component"
	case KindAnnotations:
		return "annotations"
	case KindError:
		return "error"
	case KindStreamEnd:
		return "stream-end"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// ErrorPayload is the body of an in-band error event.
type ErrorPayload struct {
	Message    string `json:"error"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// Event is one decoded frame. Kind selects which payload field is set.
type Event struct {
	Kind EventKind

	// Text is set for KindTextChunk and KindMessage.
	Text string

	// Component is the structured-data object for KindUIComponent.
	Component json.RawMessage

	// Annotations is the raw annotation object for KindAnnotations.
	// Kept raw so the reducer can filter reserved keys without committing
	// to a schema for the arbitrary remainder.
	Annotations json.RawMessage

	// Err is set for KindError.
	Err ErrorPayload

	// AssistantMessageID is set for KindStreamEnd when the server supplied
	// a durable message id.
	AssistantMessageID string
}

// =============================================================================
// FRAME DECODING
// =============================================================================

// textChunkPayload is the body of a text-chunk frame.
type textChunkPayload struct {
	Text string `json:"text"`
}

// uiComponentPayload is the body of a ui-component frame.
type uiComponentPayload struct {
	Data json.RawMessage `json:"data"`
}

// streamEndPayload is the body of a stream-end frame.
type streamEndPayload struct {
	AssistantMessageID string `json:"assistantMessageId"`
}

// Decode converts a raw frame into a typed event.
//
// Unknown event names and malformed JSON payloads both return an error
// wrapping ErrMalformedFrame; callers log and skip such frames rather than
// aborting the stream.
func Decode(f Frame) (Event, error) {
	switch f.Event {
	case "text-chunk":
		var p textChunkPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return Event{}, fmt.Errorf("%w: text-chunk: %v", ErrMalformedFrame, err)
		}
		return Event{Kind: KindTextChunk, Text: p.Text}, nil

	case "ui-component":
		var p uiComponentPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return Event{}, fmt.Errorf("%w: ui-component: %v", ErrMalformedFrame, err)
		}
		if len(p.Data) == 0 {
			return Event{}, fmt.Errorf("%w: ui-component without data object", ErrMalformedFrame)
		}
		return Event{Kind: KindUIComponent, Component: p.Data}, nil

	case "annotations":
		// Arbitrary object; validate shape only. The reducer inspects the
		// raw bytes with gjson when merging.
		if !gjson.ValidBytes(f.Data) || !gjson.ParseBytes(f.Data).IsObject() {
			return Event{}, fmt.Errorf("%w: annotations payload is not a JSON object", ErrMalformedFrame)
		}
		raw := make(json.RawMessage, len(f.Data))
		copy(raw, f.Data)
		return Event{Kind: KindAnnotations, Annotations: raw}, nil

	case "error":
		var p ErrorPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return Event{}, fmt.Errorf("%w: error: %v", ErrMalformedFrame, err)
		}
		return Event{Kind: KindError, Err: p}, nil

	case "stream-end":
		var p streamEndPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return Event{}, fmt.Errorf("%w: stream-end: %v", ErrMalformedFrame, err)
		}
		return Event{Kind: KindStreamEnd, AssistantMessageID: p.AssistantMessageID}, nil

	case DefaultEventName:
		var p textChunkPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return Event{}, fmt.Errorf("%w: message: %v", ErrMalformedFrame, err)
		}
		return Event{Kind: KindMessage, Text: p.Text}, nil

	default:
		return Event{}, fmt.Errorf("%w: unknown event %q", ErrMalformedFrame, f.Event)
	}
}
