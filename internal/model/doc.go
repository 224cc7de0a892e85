// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the application
// for representing chat conversations, messages, content parts, and
// attachments.
//
// # Key Types
//
//   - Conversation: ordered message list with copy-on-write mutations
//   - Message: single message with role, content, attachments, annotations
//   - Part: discriminated content part (text, input_image)
//   - Attachment: file metadata plus transient binary payload
//   - Role: message role enumeration (user, assistant, system, tool)
//
// # Identity
//
// A message id is provisional (client-generated, "local-" prefixed) until
// the server assigns a durable id at stream finalization. All in-flight
// updates during streaming key off the provisional id.
//
// # Usage
//
// Create a conversation and add the optimistic pair for a send:
//
//	conv := model.NewConversation()
//	conv.Append(model.NewUserMessage("Hello!"))
//	placeholder := model.NewAssistantPlaceholder()
//	conv.Append(placeholder)
package model
