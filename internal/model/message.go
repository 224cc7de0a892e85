// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Minato"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// provisionalPrefix marks client-generated ids. The server replaces a
// provisional id with a durable one exactly once, at stream finalization.
const provisionalPrefix = "local-"

// Message represents a single message in a conversation.
//
// Messages are treated as values: the session layer never mutates a Message
// that has already been handed to a renderer. Updates go through
// Conversation.Update, which rebuilds the list.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content. Either plain text in Content, or an ordered sequence of
	// typed parts in Parts. Parts take precedence when non-empty; order
	// is significant for rendering.
	Content string `json:"content,omitempty"`
	Parts   []Part `json:"parts,omitempty"`

	// Attachment metadata. Binary payloads ride along only until the
	// transport has shipped them (see Attachment.Payload).
	Attachments []Attachment `json:"attachments,omitempty"`

	// StructuredData is an opaque payload produced by a tool or assistant
	// turn. It is rendered by a dedicated component and passed through
	// untouched by the reconciliation logic.
	StructuredData json.RawMessage `json:"structured_data,omitempty"`

	// Annotations holds non-content fields merged from annotation frames
	// (intent type, TTS instructions, ...). Identity and content keys are
	// never written here; see reducer.ReservedAnnotationKeys.
	Annotations map[string]any `json:"annotations,omitempty"`

	// Error is set when the turn failed.
	Error bool `json:"error,omitempty"`
}

// NewMessage creates a new message with a generated provisional ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewProvisionalID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewUserMessageWithAttachments creates a user message carrying attachments.
func NewUserMessageWithAttachments(content string, attachments []Attachment) Message {
	msg := NewMessage(RoleUser, content)
	msg.Attachments = attachments
	return msg
}

// NewAssistantPlaceholder creates the empty assistant message inserted
// immediately after a send, before any content is known. Streamed frames
// fill it in, keyed by its provisional ID.
func NewAssistantPlaceholder() Message {
	return Message{
		ID:        NewProvisionalID(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewProvisionalID generates a client-side message id. It keys all UI state
// for a turn until the server supplies a durable id.
func NewProvisionalID() string {
	return provisionalPrefix + uuid.NewString()
}

// IsProvisional reports whether the id is client-generated.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// DisplayContent returns the text to render: the ordered text parts when
// Parts is set, the plain Content otherwise.
func (m Message) DisplayContent() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// IsEmpty returns true if the message has no renderable content.
func (m Message) IsEmpty() bool {
	return m.DisplayContent() == "" && len(m.StructuredData) == 0
}

// HasAttachments reports whether the message carries attachment metadata.
func (m Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// HasUnsentPayload reports whether any attachment still holds binary data
// that has not been shipped to the server. It decides JSON vs multipart
// encoding at the transport layer.
func (m Message) HasUnsentPayload() bool {
	for _, a := range m.Attachments {
		if len(a.Payload) > 0 {
			return true
		}
	}
	return false
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	content := m.DisplayContent()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a deep copy of the message. Slices and maps are copied so
// the clone can be updated without aliasing the original.
func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		copy(out.Parts, m.Parts)
	}
	if m.Attachments != nil {
		out.Attachments = make([]Attachment, len(m.Attachments))
		copy(out.Attachments, m.Attachments)
	}
	if m.StructuredData != nil {
		out.StructuredData = make(json.RawMessage, len(m.StructuredData))
		copy(out.StructuredData, m.StructuredData)
	}
	if m.Annotations != nil {
		out.Annotations = make(map[string]any, len(m.Annotations))
		for k, v := range m.Annotations {
			out.Annotations[k] = v
		}
	}
	return out
}
