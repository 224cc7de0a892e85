// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ngandimoun/minato-tui/internal/model"
)

// Configuration constants for the Minato API.
const (
	// DefaultBaseURL is the base URL for the Minato API.
	DefaultBaseURL = "https://api.minato.ai"

	// EndpointChat accepts a turn and answers with the chat event stream.
	EndpointChat = "/api/chat"

	// EndpointAudio accepts a voice turn (binary audio + messages JSON).
	EndpointAudio = "/api/audio"

	// EndpointHistory serves paged conversation history.
	EndpointHistory = "/api/history"

	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the retry budget for non-streaming requests.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// defaultSendsPerMinute bounds how fast turns leave the client.
	defaultSendsPerMinute = 30
)

// Shared HTTP clients with connection pooling. The streaming client carries
// no timeout; stream lifetime is controlled by the request context.
var (
	sharedHTTPClient = &http.Client{
		Transport: newPooledTransport(),
		Timeout:   DefaultTimeout,
	}

	sharedStreamingClient = &http.Client{
		Transport: newPooledTransport(),
	}
)

func newPooledTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is a client for the Minato chat API.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	streamClient *http.Client
	maxRetries   int
	limiter      *rate.Limiter
	logger       *zap.Logger
}

// New creates a Minato API client.
func New(apiKey string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      DefaultBaseURL,
		apiKey:       strings.TrimSpace(apiKey),
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
		maxRetries:   DefaultMaxRetries,
		limiter:      rate.NewLimiter(rate.Limit(defaultSendsPerMinute)/60, 2),
		logger:       logger,
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithHTTPClients overrides both HTTP clients. Used by tests.
func (c *Client) WithHTTPClients(plain, streaming *http.Client) *Client {
	c.httpClient = plain
	c.streamClient = streaming
	return c
}

// WithMaxRetries sets the retry budget for non-streaming requests.
func (c *Client) WithMaxRetries(n int) *Client {
	c.maxRetries = n
	return c
}

// WithSendRate replaces the client-side send limiter.
func (c *Client) WithSendRate(perMinute int, burst int) *Client {
	c.limiter = rate.NewLimiter(rate.Limit(perMinute)/60, burst)
	return c
}

// =============================================================================
// CHAT TURN (STREAMING)
// =============================================================================

// turnRequest is the JSON body of a chat turn.
type turnRequest struct {
	Messages []model.Message `json:"messages"`
}

// StartTurn posts the conversation turn and opens the response event
// stream. The body is JSON when no attachment still holds binary payload,
// multipart otherwise (messages JSON plus attachment_<index> parts).
//
// The returned handle owns the response body; the caller must Close it.
func (c *Client) StartTurn(ctx context.Context, messages []model.Message) (*StreamHandle, error) {
	if len(messages) == 0 {
		return nil, ErrEmptyTurn
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	var contentType string
	if hasUnsentPayload(messages) {
		buf, ct, err := encodeMultipartTurn(messages)
		if err != nil {
			return nil, fmt.Errorf("encode multipart turn: %w", err)
		}
		body, contentType = buf, ct
	} else {
		raw, err := json.Marshal(turnRequest{Messages: messages})
		if err != nil {
			return nil, fmt.Errorf("encode turn: %w", err)
		}
		body, contentType = bytes.NewReader(raw), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointChat, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, contentType)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, parseRetryAfter(resp)
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newAPIError(resp.StatusCode, EndpointChat, raw)
	}

	return newStreamHandle(resp.Body, c.logger), nil
}

// =============================================================================
// VOICE TURN
// =============================================================================

// VoiceResult is the outcome of a voice turn. Exactly one field is set:
// Stream when the endpoint answered with the event stream, Message when it
// answered with a single JSON object.
type VoiceResult struct {
	Stream  *StreamHandle
	Message *model.Message
}

// StartVoiceTurn posts a recorded audio clip plus the conversation context.
// The endpoint variant decides the response shape; the Content-Type of the
// answer picks the branch of VoiceResult.
func (c *Client) StartVoiceTurn(ctx context.Context, audio []byte, filename string, messages []model.Message) (*VoiceResult, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyTurn
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	buf, contentType, err := encodeVoiceTurn(audio, filename, messages)
	if err != nil {
		return nil, fmt.Errorf("encode voice turn: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointAudio, buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, contentType)
	req.Header.Set("Accept", "text/event-stream, application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, parseRetryAfter(resp)
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newAPIError(resp.StatusCode, EndpointAudio, raw)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return &VoiceResult{Stream: newStreamHandle(resp.Body, c.logger)}, nil
	}

	defer resp.Body.Close()
	var msg model.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode voice response: %w", err)
	}
	return &VoiceResult{Message: &msg}, nil
}

// =============================================================================
// HISTORY (NON-STREAMING, RETRIED)
// =============================================================================

// historyResponse is the body of a history page.
type historyResponse struct {
	Messages []model.Message `json:"messages"`
}

// FetchHistory retrieves one page of conversation history, oldest-first
// within the page. Pages merge idempotently via Conversation.MergeHistory.
// Transient failures (network, 5xx) are retried with exponential backoff;
// 4xx failures are not.
func (c *Client) FetchHistory(ctx context.Context, conversationID string, before time.Time, limit int) ([]model.Message, error) {
	url := fmt.Sprintf("%s%s?conversation=%s&limit=%d", c.baseURL, EndpointHistory, conversationID, limit)
	if !before.IsZero() {
		url += "&before=" + before.UTC().Format(time.RFC3339Nano)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateBackoff(attempt)
			c.logger.Debug("retrying history fetch",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req, "")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			var page historyResponse
			if err := json.Unmarshal(raw, &page); err != nil {
				return nil, fmt.Errorf("decode history page: %w", err)
			}
			return page.Messages, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = parseRetryAfter(resp)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, newAPIError(resp.StatusCode, EndpointHistory, raw)
		default:
			lastErr = newAPIError(resp.StatusCode, EndpointHistory, raw)
		}
	}

	return nil, fmt.Errorf("history fetch: max retries exceeded: %w", lastErr)
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) setHeaders(req *http.Request, contentType string) {
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("User-Agent", "minato-tui")
}

// hasUnsentPayload reports whether any message still carries attachment
// bytes that must travel as multipart parts.
func hasUnsentPayload(messages []model.Message) bool {
	for _, m := range messages {
		if m.HasUnsentPayload() {
			return true
		}
	}
	return false
}

// calculateBackoff returns the exponential backoff delay for an attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
