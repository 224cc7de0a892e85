// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// CONTENT PARTS
// =============================================================================

// PartType discriminates the members of the content-part union.
type PartType string

const (
	// PartText is a plain text segment.
	PartText PartType = "text"
	// PartInputImage is an image supplied as model input.
	PartInputImage PartType = "input_image"
)

// Part is one element of a message's ordered content sequence.
// Exactly one of Text or ImageURL is meaningful, selected by Type.
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart builds an input_image content part.
func ImagePart(url string) Part {
	return Part{Type: PartInputImage, ImageURL: url}
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// Attachment is metadata for a file attached to a message. The binary
// Payload is held only until the transport ships it; persisted and
// server-echoed attachments carry metadata and a storage URL only.
type Attachment struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
	URL      string `json:"url,omitempty"`

	// Payload is the unsent binary content. Never serialized.
	Payload []byte `json:"-"`
}

// Sent returns a copy of the attachment with its binary payload dropped,
// for use once the transport has delivered the bytes.
func (a Attachment) Sent() Attachment {
	out := a
	out.Payload = nil
	return out
}
