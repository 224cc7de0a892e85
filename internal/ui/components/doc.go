// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides the visual UI components for the minato TUI.
//
// Components are stateless renderers plus a few small stateful managers:
//
//   - MessageBubble: role-styled chat bubbles and structured-data cards
//   - ToastManager: non-blocking corner notifications
//   - StatusBar: bottom bar with phase and key hints
//   - NewThinkingSpinner: the pre-first-frame activity indicator
package components
