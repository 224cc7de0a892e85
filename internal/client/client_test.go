// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ngandimoun/minato-tui/internal/model"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := New("mk-test-key", nil).
		WithBaseURL(server.URL).
		WithHTTPClients(server.Client(), server.Client()).
		WithSendRate(6000, 100) // effectively unlimited for tests
	return c, server
}

// =============================================================================
// CHAT TURN TESTS
// =============================================================================

func TestStartTurnJSON(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer mk-test-key" {
			t.Errorf("authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"messages"`) {
			t.Errorf("body missing messages field: %s", body)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: text-chunk\ndata: {\"text\":\"Hi\"}\n\n")
		io.WriteString(w, "event: stream-end\ndata: {\"assistantMessageId\":\"srv-1\"}\n\n")
	})

	handle, err := c.StartTurn(context.Background(), []model.Message{model.NewUserMessage("hello")})
	if err != nil {
		t.Fatalf("StartTurn() error: %v", err)
	}
	defer handle.Close()

	f1, err := handle.ReadFrame()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if f1.Event != "text-chunk" {
		t.Errorf("first frame event = %q", f1.Event)
	}
	f2, err := handle.ReadFrame()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if f2.Event != "stream-end" {
		t.Errorf("second frame event = %q", f2.Event)
	}
	if _, err := handle.ReadFrame(); err != io.EOF {
		t.Errorf("expected EOF after final frame, got %v", err)
	}
}

func TestStartTurnMultipart(t *testing.T) {
	payload := []byte("fake png bytes")

	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("expected multipart body: %v", err)
		}
		if msgs := r.FormValue("messages"); !strings.Contains(msgs, `"role":"user"`) {
			t.Errorf("messages field missing user message: %s", msgs)
		}

		file, header, err := r.FormFile("attachment_0")
		if err != nil {
			t.Fatalf("attachment_0 missing: %v", err)
		}
		defer file.Close()
		if header.Filename != "photo.png" {
			t.Errorf("filename = %q", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("part content type = %q", ct)
		}
		got, _ := io.ReadAll(file)
		if string(got) != string(payload) {
			t.Error("attachment bytes corrupted in transit")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: stream-end\ndata: {}\n\n")
	})

	msg := model.NewUserMessageWithAttachments("look at this", []model.Attachment{
		{Name: "photo.png", MIMEType: "image/png", Payload: payload},
	})

	handle, err := c.StartTurn(context.Background(), []model.Message{msg})
	if err != nil {
		t.Fatalf("StartTurn() error: %v", err)
	}
	handle.Close()
}

func TestStartTurnEmpty(t *testing.T) {
	c := New("", nil)
	if _, err := c.StartTurn(context.Background(), nil); !errors.Is(err, ErrEmptyTurn) {
		t.Errorf("expected ErrEmptyTurn, got %v", err)
	}
}

// =============================================================================
// ERROR TAXONOMY TESTS
// =============================================================================

func TestStartTurnAPIError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error":"upstream model unavailable"}`)
	})

	_, err := c.StartTurn(context.Background(), []model.Message{model.NewUserMessage("hi")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("status = %d", apiErr.Status)
	}
	if apiErr.Message != "upstream model unavailable" {
		t.Errorf("server message not parsed: %q", apiErr.Message)
	}
	if apiErr.UserMessage() != "upstream model unavailable" {
		t.Errorf("UserMessage() = %q", apiErr.UserMessage())
	}
}

func TestStartTurnAPIErrorUnparseableBody(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "<html>gateway exploded</html>")
	})

	_, err := c.StartTurn(context.Background(), []model.Message{model.NewUserMessage("hi")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "" {
		t.Errorf("expected no parsed message, got %q", apiErr.Message)
	}
	if !strings.Contains(apiErr.UserMessage(), "gateway exploded") {
		t.Errorf("raw body missing from user message: %q", apiErr.UserMessage())
	}
}

func TestStartTurnRateLimited(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.StartTurn(context.Background(), []model.Message{model.NewUserMessage("hi")})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", rl.RetryAfter)
	}
}

// =============================================================================
// VOICE TURN TESTS
// =============================================================================

func TestStartVoiceTurnStreaming(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("expected multipart body: %v", err)
		}
		file, _, err := r.FormFile("audio")
		if err != nil {
			t.Fatalf("audio part missing: %v", err)
		}
		file.Close()
		if r.FormValue("messages") == "" {
			t.Error("messages field missing")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: text-chunk\ndata: {\"text\":\"heard you\"}\n\n")
	})

	res, err := c.StartVoiceTurn(context.Background(), []byte("opus data"), "clip.webm", []model.Message{model.NewUserMessage("")})
	if err != nil {
		t.Fatalf("StartVoiceTurn() error: %v", err)
	}
	if res.Stream == nil || res.Message != nil {
		t.Fatal("expected streaming branch of VoiceResult")
	}
	defer res.Stream.Close()

	f, err := res.Stream.ReadFrame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if f.Event != "text-chunk" {
		t.Errorf("event = %q", f.Event)
	}
}

func TestStartVoiceTurnSingleJSON(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"srv-9","role":"assistant","content":"transcribed","timestamp":"2026-02-01T10:00:00Z"}`)
	})

	res, err := c.StartVoiceTurn(context.Background(), []byte("opus data"), "clip.webm", nil)
	if err != nil {
		t.Fatalf("StartVoiceTurn() error: %v", err)
	}
	if res.Message == nil || res.Stream != nil {
		t.Fatal("expected single-object branch of VoiceResult")
	}
	if res.Message.ID != "srv-9" || res.Message.Content != "transcribed" {
		t.Errorf("decoded message wrong: %+v", res.Message)
	}
}

// =============================================================================
// HISTORY TESTS
// =============================================================================

func TestFetchHistoryRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"messages":[{"id":"h1","role":"user","content":"old","timestamp":"2026-01-01T00:00:00Z"}]}`)
	})
	c.WithMaxRetries(2)

	page, err := c.FetchHistory(context.Background(), "conv-1", time.Time{}, 50)
	if err != nil {
		t.Fatalf("FetchHistory() error: %v", err)
	}
	if len(page) != 1 || page[0].ID != "h1" {
		t.Errorf("unexpected page: %+v", page)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls (one retry), got %d", calls.Load())
	}
}

func TestFetchHistoryNoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"unknown conversation"}`)
	})
	c.WithMaxRetries(3)

	_, err := c.FetchHistory(context.Background(), "missing", time.Time{}, 50)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("4xx must not be retried; got %d calls", calls.Load())
	}
}

// =============================================================================
// STREAM HANDLE TESTS
// =============================================================================

type closeCounter struct {
	io.Reader
	closes atomic.Int32
}

func (c *closeCounter) Close() error {
	c.closes.Add(1)
	return errors.New("already closed")
}

func TestStreamHandleCloseIdempotent(t *testing.T) {
	body := &closeCounter{Reader: strings.NewReader("")}
	h := newStreamHandle(body, nil)

	// Close errors are swallowed; double close must not release twice.
	h.Close()
	h.Close()
	if body.closes.Load() != 1 {
		t.Errorf("body closed %d times, want 1", body.closes.Load())
	}
}
