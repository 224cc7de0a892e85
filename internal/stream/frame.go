// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// =============================================================================
// FRAME GRAMMAR CONSTANTS
// =============================================================================

// MaxFrameSize is the maximum allowed size for a single frame (64KB).
// Guards against unbounded buffering on a misbehaving stream.
const MaxFrameSize = 64 * 1024

// DefaultEventName is the event name of a record with no "event:" line.
const DefaultEventName = "message"

// =============================================================================
// FRAME TYPE
// =============================================================================

// Frame is one raw record extracted from the response body: an event name
// and the undecoded JSON payload of its data line(s).
type Frame struct {
	Event string
	Data  []byte
}

// =============================================================================
// FRAME READER
// =============================================================================

// FrameReader incrementally extracts frames from a chunked text stream.
//
// Records are separated by a blank line. A record optionally carries an
// "event: <name>" line and one or more "data: <json>" lines. Chunk
// boundaries carry no meaning: a frame may span several network reads and a
// single read may hold several frames. The bufio layer carries any partial
// trailing record across reads, so the reader never assumes frame-aligned
// delivery.
//
// A FrameReader is single-use. Once ReadFrame has returned io.EOF a new
// request must start a new reader.
type FrameReader struct {
	reader *bufio.Reader
	err    error
}

// NewFrameReader creates a frame reader over the raw response body.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		reader: bufio.NewReader(r),
	}
}

// ReadFrame returns the next complete frame, in arrival order.
//
// Returns io.EOF once the underlying transport is exhausted. A trailing
// record that is missing its blank-line terminator when the stream closes
// is still delivered before EOF, so a server that drops the connection
// right after its last data line loses nothing.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	if fr.err != nil {
		return Frame{}, fr.err
	}

	event := ""
	var dataLines [][]byte
	size := 0

	for {
		line, err := fr.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				fr.err = io.EOF
				// Flush an unterminated trailing record.
				line = bytes.TrimRight(line, "\r\n")
				if ev, data, ok := parseField(line); ok {
					if ev != "" {
						event = ev
					}
					if data != nil {
						dataLines = append(dataLines, data)
					}
				}
				if len(dataLines) > 0 {
					return makeFrame(event, dataLines), nil
				}
				return Frame{}, io.EOF
			}
			fr.err = err
			return Frame{}, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line terminates the record.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return makeFrame(event, dataLines), nil
			}
			// Leading/repeated blank lines between records.
			event = ""
			continue
		}

		size += len(line)
		if size > MaxFrameSize {
			fr.err = fmt.Errorf("frame exceeds %d bytes", MaxFrameSize)
			return Frame{}, fr.err
		}

		if ev, data, ok := parseField(line); ok {
			if ev != "" {
				event = ev
			}
			if data != nil {
				dataLines = append(dataLines, data)
			}
		}
		// Other fields (id:, retry:, ": comment") are ignored.
	}
}

// parseField splits one record line into its field. Returns the event name
// (when the line is an event field), the data payload (when it is a data
// field), and whether the line was a recognized field at all.
func parseField(line []byte) (event string, data []byte, ok bool) {
	switch {
	case bytes.HasPrefix(line, []byte("event:")):
		return string(bytes.TrimSpace(line[len("event:"):])), nil, true
	case bytes.HasPrefix(line, []byte("data:")):
		return "", bytes.TrimSpace(line[len("data:"):]), true
	default:
		return "", nil, false
	}
}

// makeFrame assembles the frame, joining multi-line data payloads and
// applying the default event name.
func makeFrame(event string, dataLines [][]byte) Frame {
	if event == "" {
		event = DefaultEventName
	}
	return Frame{
		Event: event,
		Data:  bytes.Join(dataLines, []byte("\n")),
	}
}
