// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// Error variables for common transport failures.
var (
	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyTurn indicates a send with neither text nor attachments.
	ErrEmptyTurn = errors.New("empty turn: no text and no attachments")
)

// maxErrorBody caps how much of a failed response body is kept for
// diagnostics.
const maxErrorBody = 4096

// =============================================================================
// API ERROR
// =============================================================================

// APIError represents a non-success response from the Minato API.
type APIError struct {
	Status   int
	Endpoint string
	Message  string
	Body     string // truncated raw body, for when Message is absent
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("minato API error (HTTP %d) at %s: %s", e.Status, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("minato API error (HTTP %d) at %s", e.Status, e.Endpoint)
}

// UserMessage returns the text to surface in a notification: the
// server-provided message when one was parseable, else a generic line plus
// the truncated raw body.
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Body != "" {
		return fmt.Sprintf("request failed (HTTP %d): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("request failed (HTTP %d)", e.Status)
}

// newAPIError builds an APIError from a failed response body. The server
// reports failures as {"error": "..."}; anything else is kept raw
// (truncated) so the notification still has something to show.
func newAPIError(status int, endpoint string, body []byte) *APIError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	msg := ""
	if gjson.ValidBytes(body) {
		msg = gjson.GetBytes(body, "error").String()
	}
	return &APIError{
		Status:   status,
		Endpoint: endpoint,
		Message:  msg,
		Body:     string(body),
	}
}

// =============================================================================
// RATE LIMIT ERROR
// =============================================================================

// RateLimitError represents a 429 with retry information.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
	}
	return "rate limited"
}

// Is allows RateLimitError to be compared with ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// parseRetryAfter reads the Retry-After header as seconds or an HTTP date.
func parseRetryAfter(resp *http.Response) error {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return ErrRateLimited
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return &RateLimitError{RetryAfter: time.Duration(seconds) * time.Second}
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		return &RateLimitError{RetryAfter: time.Until(t)}
	}
	return ErrRateLimited
}
