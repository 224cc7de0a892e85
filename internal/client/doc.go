// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client implements the HTTP transport for the Minato chat API.
//
// A turn is POSTed to /api/chat as JSON when every attachment has already
// been shipped, or as multipart form data (messages JSON field plus
// attachment_<index> binary parts) when any attachment still carries a
// payload. Voice turns go to /api/audio as a single binary audio part plus
// the messages field; the endpoint variant answers with either the chat
// event stream or one JSON message object.
//
// Streaming requests use a timeout-less pooled client; stream lifetime is
// bounded by the request context. Non-streaming requests (history pages)
// retry transient failures with exponential backoff. A client-side
// x/time/rate limiter spaces outgoing turns.
package client
