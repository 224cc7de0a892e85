// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view for the minato TUI.
//
// This file defines the Bubble Tea message types used by the chat
// interface. All message types follow Bubble Tea conventions and are
// immutable.
package chat

import (
	"github.com/ngandimoun/minato-tui/internal/model"
	"github.com/ngandimoun/minato-tui/internal/session"
)

// =============================================================================
// TURN MESSAGES
// =============================================================================

// TurnUpdateMsg delivers a state change from the turn controller.
type TurnUpdateMsg session.Update

// =============================================================================
// HISTORY MESSAGES
// =============================================================================

// HistoryPageMsg delivers an older page of messages for merging.
type HistoryPageMsg struct {
	Messages []model.Message
	Error    error
}

// ConversationSavedMsg confirms a local save.
type ConversationSavedMsg struct {
	Error error
}
