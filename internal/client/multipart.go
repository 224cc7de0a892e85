// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/ngandimoun/minato-tui/internal/model"
)

// =============================================================================
// MULTIPART ENCODING
// =============================================================================

// encodeMultipartTurn builds the multipart body for a turn that carries
// unsent attachment payloads: a "messages" field holding the turn JSON plus
// one "attachment_<index>" binary part per pending payload. The index is
// global across the turn's messages, matching the order the attachments
// appear in the serialized messages field.
func encodeMultipartTurn(messages []model.Message) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if err := writeMessagesField(w, messages); err != nil {
		return nil, "", err
	}

	idx := 0
	for _, msg := range messages {
		for _, att := range msg.Attachments {
			if len(att.Payload) == 0 {
				continue
			}
			if err := writeBinaryPart(w, fmt.Sprintf("attachment_%d", idx), att.Name, att.MIMEType, att.Payload); err != nil {
				return nil, "", err
			}
			idx++
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// encodeVoiceTurn builds the multipart body for a voice turn: a single
// binary "audio" part plus the "messages" JSON field carrying conversation
// context.
func encodeVoiceTurn(audio []byte, filename string, messages []model.Message) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if err := writeBinaryPart(w, "audio", filename, "audio/webm", audio); err != nil {
		return nil, "", err
	}
	if err := writeMessagesField(w, messages); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// writeMessagesField serializes the turn messages into the "messages"
// form field. Attachment payloads never ride in the JSON; they travel as
// their own parts.
func writeMessagesField(w *multipart.Writer, messages []model.Message) error {
	raw, err := json.Marshal(turnRequest{Messages: messages})
	if err != nil {
		return fmt.Errorf("marshal messages field: %w", err)
	}
	field, err := w.CreateFormField("messages")
	if err != nil {
		return err
	}
	_, err = field.Write(raw)
	return err
}

// writeBinaryPart writes one binary part with an explicit content type.
func writeBinaryPart(w *multipart.Writer, name, filename, mimeType string, payload []byte) error {
	if filename == "" {
		filename = name
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`,
		escapeQuotes(name), escapeQuotes(filename)))
	h.Set("Content-Type", mimeType)

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(payload)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
