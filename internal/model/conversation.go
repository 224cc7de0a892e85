// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// MaxMessages is the maximum number of messages to keep in conversation
// history. When exceeded, old messages are pruned to prevent unbounded
// memory growth.
const MaxMessages = 1000

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds one chat conversation with history and metadata.
//
// The message list is the only shared mutable resource between the UI loop
// and in-flight send operations, so every mutation rebuilds the slice
// instead of writing through it. Interleaved async callbacks holding an
// older slice therefore never observe a torn update.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages, ordered by timestamp. Append-only except for history
	// backfill, which prepends older pages and re-sorts.
	Messages []Message `json:"messages"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation() *Conversation {
	return &Conversation{
		ID:        "conv-" + uuid.NewString(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Messages:  make([]Message, 0),
	}
}

// =============================================================================
// MESSAGE LIST OPERATIONS (COPY-ON-WRITE)
// =============================================================================

// Append adds a message to the end of the list.
func (c *Conversation) Append(msg Message) {
	next := make([]Message, 0, len(c.Messages)+1)
	next = append(next, c.Messages...)
	next = append(next, msg)
	c.Messages = next
	c.UpdatedAt = time.Now()
	c.updateTitle()
	c.pruneOldMessages()
}

// Update replaces the message with the given id by fn's result.
// Returns false when no message has that id; the list is left untouched.
func (c *Conversation) Update(id string, fn func(Message) Message) bool {
	idx := c.indexOf(id)
	if idx < 0 {
		return false
	}
	next := make([]Message, len(c.Messages))
	copy(next, c.Messages)
	next[idx] = fn(next[idx].Clone())
	c.Messages = next
	c.UpdatedAt = time.Now()
	return true
}

// Remove filters out the message with the given id.
// Returns false when no message has that id.
func (c *Conversation) Remove(id string) bool {
	idx := c.indexOf(id)
	if idx < 0 {
		return false
	}
	next := make([]Message, 0, len(c.Messages)-1)
	next = append(next, c.Messages[:idx]...)
	next = append(next, c.Messages[idx+1:]...)
	c.Messages = next
	c.UpdatedAt = time.Now()
	return true
}

// InsertAfter places msg immediately after the message with the given id,
// or appends when the anchor is missing. Used for sibling structured-data
// messages emitted next to a streaming placeholder.
func (c *Conversation) InsertAfter(id string, msg Message) {
	idx := c.indexOf(id)
	if idx < 0 {
		c.Append(msg)
		return
	}
	next := make([]Message, 0, len(c.Messages)+1)
	next = append(next, c.Messages[:idx+1]...)
	next = append(next, msg)
	next = append(next, c.Messages[idx+1:]...)
	c.Messages = next
	c.UpdatedAt = time.Now()
}

// Get returns the message with the given id and whether it was found.
func (c *Conversation) Get(id string) (Message, bool) {
	idx := c.indexOf(id)
	if idx < 0 {
		return Message{}, false
	}
	return c.Messages[idx], true
}

// Last returns the most recent message, or false if the list is empty.
func (c *Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

func (c *Conversation) indexOf(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// HISTORY MERGE
// =============================================================================

// MergeHistory folds a page of historical messages into the list.
//
// Merging is by id: a page message whose id is already present is a no-op,
// so replaying the same page is idempotent. New messages are prepended and
// the whole list is re-sorted by timestamp, which keeps backfilled pages in
// display order regardless of fetch order.
func (c *Conversation) MergeHistory(page []Message) {
	if len(page) == 0 {
		return
	}

	seen := make(map[string]struct{}, len(c.Messages))
	for _, m := range c.Messages {
		seen[m.ID] = struct{}{}
	}

	next := make([]Message, 0, len(c.Messages)+len(page))
	for _, m := range page {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		next = append(next, m)
	}
	if len(next) == 0 {
		return
	}
	next = append(next, c.Messages...)

	sort.SliceStable(next, func(i, j int) bool {
		return next[i].Timestamp.Before(next[j].Timestamp)
	})

	c.Messages = next
	c.UpdatedAt = time.Now()
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = msg.Preview(50)
			return
		}
	}
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.UpdatedAt = time.Now()
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Messages:  make([]Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return clone
}

// pruneOldMessages drops the oldest messages once the list exceeds
// MaxMessages, keeping system messages and the most recent remainder.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}

	var system []Message
	var other []Message
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			other = append(other, msg)
		}
	}

	if len(other) > MaxMessages {
		other = other[len(other)-MaxMessages:]
	}

	next := make([]Message, 0, len(system)+len(other))
	next = append(next, system...)
	next = append(next, other...)
	c.Messages = next
}
