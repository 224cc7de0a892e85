// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"testing"
	"time"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessage(t *testing.T) {
	msg := NewUserMessage("hello")

	if msg.ID == "" {
		t.Error("expected non-empty ID")
	}
	if !IsProvisional(msg.ID) {
		t.Errorf("expected provisional ID, got %q", msg.ID)
	}
	if msg.Role != RoleUser {
		t.Errorf("expected role user, got %q", msg.Role)
	}
	if msg.Content != "hello" {
		t.Errorf("expected content 'hello', got %q", msg.Content)
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestNewAssistantPlaceholder(t *testing.T) {
	msg := NewAssistantPlaceholder()

	if msg.Role != RoleAssistant {
		t.Errorf("expected role assistant, got %q", msg.Role)
	}
	if !msg.IsEmpty() {
		t.Error("placeholder should start empty")
	}
	if !IsProvisional(msg.ID) {
		t.Error("placeholder id should be provisional")
	}
}

func TestDisplayContent(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "plain content",
			msg:  Message{Content: "hello"},
			want: "hello",
		},
		{
			name: "parts take precedence",
			msg: Message{
				Content: "ignored",
				Parts: []Part{
					TextPart("a"),
					ImagePart("https://example.com/x.png"),
					TextPart("b"),
				},
			},
			want: "ab",
		},
		{
			name: "empty",
			msg:  Message{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.DisplayContent(); got != tt.want {
				t.Errorf("DisplayContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasUnsentPayload(t *testing.T) {
	msg := NewUserMessageWithAttachments("see attached", []Attachment{
		{Name: "a.png", MIMEType: "image/png", Payload: []byte{1, 2, 3}},
	})
	if !msg.HasUnsentPayload() {
		t.Error("expected unsent payload")
	}

	msg.Attachments[0] = msg.Attachments[0].Sent()
	if msg.HasUnsentPayload() {
		t.Error("expected payload to be dropped after Sent()")
	}
	if msg.Attachments[0].Name != "a.png" {
		t.Error("Sent() must preserve metadata")
	}
}

func TestRoleDisplayName(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUser, "You"},
		{RoleAssistant, "Minato"},
		{RoleSystem, "System"},
		{RoleTool, "Tool"},
		{Role("other"), "other"},
	}

	for _, tt := range tests {
		if got := tt.role.DisplayName(); got != tt.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.role, got, tt.want)
		}
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversationAppend(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewUserMessage("first"))
	conv.Append(NewUserMessage("second"))

	if conv.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", conv.Len())
	}
	if conv.Messages[0].Content != "first" {
		t.Error("append must preserve insertion order")
	}
}

// Appending must not write through slices handed out earlier; an async
// callback holding the old list would otherwise observe the update.
func TestConversationCopyOnWrite(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewUserMessage("one"))

	snapshot := conv.Messages
	conv.Append(NewUserMessage("two"))

	if len(snapshot) != 1 {
		t.Fatalf("snapshot grew: len=%d", len(snapshot))
	}

	conv.Update(conv.Messages[0].ID, func(m Message) Message {
		m.Content = "mutated"
		return m
	})
	if snapshot[0].Content != "one" {
		t.Error("Update wrote through an older snapshot")
	}
}

func TestConversationUpdate(t *testing.T) {
	conv := NewConversation()
	msg := NewUserMessage("before")
	conv.Append(msg)

	ok := conv.Update(msg.ID, func(m Message) Message {
		m.Content = "after"
		return m
	})
	if !ok {
		t.Fatal("expected update to find the message")
	}
	got, _ := conv.Get(msg.ID)
	if got.Content != "after" {
		t.Errorf("expected updated content, got %q", got.Content)
	}

	if conv.Update("missing", func(m Message) Message { return m }) {
		t.Error("update of unknown id must report false")
	}
}

func TestConversationRemove(t *testing.T) {
	conv := NewConversation()
	user := NewUserMessage("hi")
	placeholder := NewAssistantPlaceholder()
	conv.Append(user)
	conv.Append(placeholder)

	if !conv.Remove(placeholder.ID) {
		t.Fatal("expected removal to succeed")
	}
	if !conv.Remove(user.ID) {
		t.Fatal("expected removal to succeed")
	}
	if conv.Len() != 0 {
		t.Errorf("expected empty list, got %d messages", conv.Len())
	}
	if conv.Remove(user.ID) {
		t.Error("double removal must report false")
	}
}

func TestConversationInsertAfter(t *testing.T) {
	conv := NewConversation()
	a := NewUserMessage("a")
	b := NewUserMessage("b")
	conv.Append(a)
	conv.Append(b)

	sibling := NewAssistantPlaceholder()
	conv.InsertAfter(a.ID, sibling)

	if conv.Messages[1].ID != sibling.ID {
		t.Error("sibling should land directly after its anchor")
	}

	// Missing anchor falls back to append.
	tail := NewAssistantPlaceholder()
	conv.InsertAfter("missing", tail)
	last, _ := conv.Last()
	if last.ID != tail.ID {
		t.Error("missing anchor should append")
	}
}

// =============================================================================
// HISTORY MERGE TESTS
// =============================================================================

func TestMergeHistoryIdempotent(t *testing.T) {
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	conv := NewConversation()
	live := NewUserMessage("live")
	live.Timestamp = base.Add(3 * time.Hour)
	conv.Append(live)

	page := []Message{
		{ID: "h2", Role: RoleAssistant, Content: "older reply", Timestamp: base.Add(time.Hour)},
		{ID: "h1", Role: RoleUser, Content: "older question", Timestamp: base},
	}

	conv.MergeHistory(page)
	conv.MergeHistory(page) // replay must be a no-op

	if conv.Len() != 3 {
		t.Fatalf("expected 3 messages after double merge, got %d", conv.Len())
	}

	// Timestamp-sorted order, oldest first.
	wantOrder := []string{"h1", "h2", live.ID}
	for i, id := range wantOrder {
		if conv.Messages[i].ID != id {
			t.Errorf("position %d: got %q, want %q", i, conv.Messages[i].ID, id)
		}
	}

	// No duplicate ids.
	seen := map[string]bool{}
	for _, m := range conv.Messages {
		if seen[m.ID] {
			t.Errorf("duplicate id %q after merge", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestMergeHistoryEmptyPage(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewUserMessage("only"))
	before := conv.Messages

	conv.MergeHistory(nil)
	conv.MergeHistory([]Message{})

	if len(conv.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(conv.Messages))
	}
	if &before[0] != &conv.Messages[0] {
		t.Error("empty merge should not rebuild the list")
	}
}

func TestConversationTitle(t *testing.T) {
	conv := NewConversation()
	if conv.GetTitle() != "New Conversation" {
		t.Errorf("unexpected default title %q", conv.GetTitle())
	}

	conv.Append(NewUserMessage("what is the weather like in Osaka today?"))
	if conv.Title == "" {
		t.Error("title should auto-populate from the first user message")
	}

	conv.SetTitle("custom")
	if conv.GetTitle() != "custom" {
		t.Error("manual title should win")
	}
}
