// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ngandimoun/minato-tui/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func messageAt(id, content string, role model.Role, ts time.Time) model.Message {
	return model.Message{ID: id, Role: role, Content: content, Timestamp: ts}
}

// =============================================================================
// SAVE / LOAD ROUNDTRIP
// =============================================================================

func TestSaveAndLoadConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	conv := model.NewConversation()
	conv.SetTitle("trip planning")
	conv.Append(messageAt("m1", "plan me a trip", model.RoleUser, base))

	assistant := messageAt("srv-1", "Here is your itinerary.", model.RoleAssistant, base.Add(time.Second))
	assistant.Annotations = map[string]any{"intentType": "planning"}
	assistant.StructuredData = json.RawMessage(`{"type":"itinerary","id":"it-1"}`)
	conv.Append(assistant)

	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}

	loaded, err := s.LoadConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("LoadConversation() error = %v", err)
	}

	if loaded.GetTitle() != "trip planning" {
		t.Errorf("title = %q, want %q", loaded.GetTitle(), "trip planning")
	}
	if loaded.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", loaded.Len())
	}

	got, ok := loaded.Get("srv-1")
	if !ok {
		t.Fatal("assistant message missing after reload")
	}
	if got.Content != "Here is your itinerary." {
		t.Errorf("content = %q", got.Content)
	}
	if got.Annotations["intentType"] != "planning" {
		t.Errorf("annotations = %v", got.Annotations)
	}
	if string(got.StructuredData) != `{"type":"itinerary","id":"it-1"}` {
		t.Errorf("structured data = %s", got.StructuredData)
	}
	if !got.Timestamp.Equal(assistant.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, assistant.Timestamp)
	}
}

func TestLoadConversationNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.LoadConversation(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// Attachment payloads must never reach disk; metadata survives.
func TestSaveStripsAttachmentPayloads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := model.NewConversation()
	user := model.NewUserMessageWithAttachments("look at this", []model.Attachment{{
		ID:       "att-1",
		Name:     "photo.png",
		MIMEType: "image/png",
		Size:     3,
		Payload:  []byte{1, 2, 3},
	}})
	conv.Append(user)

	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}

	loaded, err := s.LoadConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("LoadConversation() error = %v", err)
	}
	got, _ := loaded.Get(user.ID)
	if len(got.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(got.Attachments))
	}
	if got.Attachments[0].Name != "photo.png" || got.Attachments[0].MIMEType != "image/png" {
		t.Errorf("metadata lost: %+v", got.Attachments[0])
	}
	if got.Attachments[0].Payload != nil {
		t.Error("payload bytes persisted")
	}
}

// Re-saving after the provisional -> server id swap must not leave the
// stale provisional row behind.
func TestResaveAfterIDSwapLeavesNoDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := model.NewConversation()
	conv.Append(messageAt("m1", "hi", model.RoleUser, time.Now().Add(-time.Minute)))
	placeholder := model.NewAssistantPlaceholder()
	placeholder.Content = "partial"
	conv.Append(placeholder)

	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("first save: %v", err)
	}

	conv.Update(placeholder.ID, func(m model.Message) model.Message {
		m.ID = "srv-1"
		m.Content = "done"
		return m
	})
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := s.LoadConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("LoadConversation() error = %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (provisional row must be gone)", loaded.Len())
	}
	if _, ok := loaded.Get(placeholder.ID); ok {
		t.Error("stale provisional row survived the id swap")
	}
	if got, _ := loaded.Get("srv-1"); got.Content != "done" {
		t.Errorf("content = %q, want %q", got.Content, "done")
	}
}

// =============================================================================
// PAGING
// =============================================================================

func TestLoadMessagesBeforePaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	conv := model.NewConversation()
	for i := 0; i < 5; i++ {
		conv.Append(messageAt(
			fmt.Sprintf("m%d", i),
			fmt.Sprintf("message %d", i),
			model.RoleUser,
			base.Add(time.Duration(i)*time.Minute)))
	}
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}

	// Latest page: the two newest, oldest-first within the page.
	page, err := s.LoadMessagesBefore(ctx, conv.ID, time.Time{}, 2)
	if err != nil {
		t.Fatalf("LoadMessagesBefore() error = %v", err)
	}
	if len(page) != 2 || page[0].ID != "m3" || page[1].ID != "m4" {
		t.Fatalf("latest page = %v", ids(page))
	}

	// Next page ends where the previous began.
	older, err := s.LoadMessagesBefore(ctx, conv.ID, page[0].Timestamp, 2)
	if err != nil {
		t.Fatalf("LoadMessagesBefore() error = %v", err)
	}
	if len(older) != 2 || older[0].ID != "m1" || older[1].ID != "m2" {
		t.Fatalf("older page = %v", ids(older))
	}

	// Pages feed MergeHistory without reordering or duplication.
	live := model.NewConversation()
	live.Messages = page
	live.MergeHistory(older)
	want := []string{"m1", "m2", "m3", "m4"}
	for i, id := range want {
		if live.Messages[i].ID != id {
			t.Fatalf("merged order = %v, want %v", ids(live.Messages), want)
		}
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// =============================================================================
// LIST / DELETE / PRUNE
// =============================================================================

func TestListConversationsOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := model.NewConversation()
	first.Append(messageAt("a1", "first", model.RoleUser, time.Now().Add(-time.Minute)))
	if err := s.SaveConversation(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := model.NewConversation()
	second.Append(messageAt("b1", "second", model.RoleUser, time.Now()))
	if err := s.SaveConversation(ctx, second); err != nil {
		t.Fatal(err)
	}

	metas, err := s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("len = %d, want 2", len(metas))
	}
	if metas[0].ID != second.ID {
		t.Errorf("most recent first: got %s", metas[0].ID)
	}
	if metas[0].MessageCount != 1 {
		t.Errorf("message count = %d, want 1", metas[0].MessageCount)
	}
}

func TestDeleteConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := model.NewConversation()
	conv.Append(messageAt("m1", "hi", model.RoleUser, time.Now()))
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}
	if _, err := s.LoadConversation(ctx, conv.ID); err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}

	// Cascade: messages go with the conversation.
	page, err := s.LoadMessagesBefore(ctx, conv.ID, time.Time{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 0 {
		t.Errorf("orphaned messages: %v", ids(page))
	}

	if err := s.DeleteConversation(ctx, conv.ID); err != ErrNotFound {
		t.Errorf("double delete error = %v, want ErrNotFound", err)
	}
}

func TestPruneOldestConversations(t *testing.T) {
	s := newTestStore(t).WithMaxConversations(2)
	ctx := context.Background()

	var convIDs []string
	for i := 0; i < 3; i++ {
		conv := model.NewConversation()
		conv.Append(messageAt(
			fmt.Sprintf("p%d", i), "hi", model.RoleUser,
			time.Now().Add(time.Duration(i)*time.Second)))
		if err := s.SaveConversation(ctx, conv); err != nil {
			t.Fatal(err)
		}
		convIDs = append(convIDs, conv.ID)
		time.Sleep(2 * time.Millisecond) // distinct updated_at
	}

	metas, err := s.ListConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Fatalf("len = %d, want 2 after prune", len(metas))
	}
	for _, m := range metas {
		if m.ID == convIDs[0] {
			t.Error("oldest conversation survived the prune")
		}
	}
}
