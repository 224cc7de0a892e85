// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream parses the Minato chat event stream.
//
// The chat endpoint answers a POST with a chunked text body made of
// blank-line-delimited records:
//
//	event: text-chunk
//	data: {"text":"Hi"}
//
//	event: stream-end
//	data: {"assistantMessageId":"srv-1"}
//
// FrameReader extracts raw (event, data) frames from the body, buffering
// partial trailing records across reads. Decode converts a frame into the
// closed Event union (text-chunk, ui-component, annotations, error,
// stream-end) consumed by the reducer.
//
// Frames are delivered strictly in arrival order and a reader is
// single-use: a new request starts a new FrameReader.
package stream
