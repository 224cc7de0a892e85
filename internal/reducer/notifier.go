// Copyright (c) 2025 Minato Labs
// SPDX-License-Identifier: AGPL-3.0-or-later

package reducer

// =============================================================================
// NOTIFICATION PORT
// =============================================================================

// NotifyKind classifies a user-facing notification.
type NotifyKind int

const (
	// NotifyInfo is a neutral status notice (e.g. "cancelled").
	NotifyInfo NotifyKind = iota
	// NotifyError is a failure the user must see.
	NotifyError
)

// Notifier is the port through which the reducer surfaces user-facing
// notifications. The TUI satisfies it with its toast system; tests satisfy
// it with a recorder. Keeping it an explicit dependency means notification
// obligations are assertable without a UI runtime.
type Notifier interface {
	Notify(kind NotifyKind, message string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(NotifyKind, string) {}
